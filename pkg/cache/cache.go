// Package cache 提供按条目数和存活时间双重限制的内存缓存。
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache 是一个 TTL + 容量上限的缓存。
// 容量溢出时按插入顺序淘汰（最早插入的先淘汰），而不是 LRU；
// 对已存在的键重新 Set 不会改变它的插入位置。
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	order      *list.List // 元素为 K，按插入顺序
	items      map[K]*entry[V]
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
	elem      *list.Element
}

// New 创建一个新的缓存。maxEntries <= 0 表示不限条目数，ttl <= 0 表示永不过期。
func New[K comparable, V any](maxEntries int, ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		order:      list.New(),
		items:      make(map[K]*entry[V]),
	}
}

// WithClock 替换时钟，主要用于测试。
func (c *Cache[K, V]) WithClock(now func() time.Time) *Cache[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// Get 读取缓存。过期条目在读取时删除。
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if c.expired(e) {
		c.remove(key, e)
		return zero, false
	}
	return e.value, true
}

// Set 写入缓存并刷新过期时间。
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Time{}
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}
	if e, ok := c.items[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		return
	}
	c.items[key] = &entry[V]{value: value, expiresAt: expiresAt, elem: c.order.PushBack(key)}

	for c.maxEntries > 0 && len(c.items) > c.maxEntries {
		oldest := c.order.Front()
		k := oldest.Value.(K)
		c.remove(k, c.items[k])
	}
}

// Delete 删除指定键。
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		c.remove(key, e)
	}
}

// Len 返回当前条目数（包含尚未被读取清理的过期条目）。
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[K, V]) expired(e *entry[V]) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}

func (c *Cache[K, V]) remove(key K, e *entry[V]) {
	c.order.Remove(e.elem)
	delete(c.items, key)
}
