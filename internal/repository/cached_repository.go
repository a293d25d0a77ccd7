package repository

import (
	"context"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/cache"
)

// CachedRepository 在持久化存储前加一层读穿/写穿缓存，以对话 ID 为键。
// 进出缓存的对象都会深拷贝，调用方修改返回值不会污染缓存。
type CachedRepository struct {
	next  ConversationRepository
	cache *cache.Cache[string, *model.Conversation]
}

// NewCachedRepository 创建一个带缓存的 ConversationRepository。
func NewCachedRepository(next ConversationRepository, c *cache.Cache[string, *model.Conversation]) *CachedRepository {
	return &CachedRepository{next: next, cache: c}
}

// Get 优先读缓存，未命中时读取底层存储并回填。
func (r *CachedRepository) Get(ctx context.Context, id string) (*model.Conversation, error) {
	if conv, ok := r.cache.Get(id); ok {
		return conv.Clone(), nil
	}
	conv, err := r.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Set(id, conv.Clone())
	return conv, nil
}

// Put 写入底层存储，成功后更新缓存；失败时丢弃缓存条目。
func (r *CachedRepository) Put(ctx context.Context, conv *model.Conversation) error {
	if err := r.next.Put(ctx, conv); err != nil {
		r.cache.Delete(conv.ID)
		return err
	}
	r.cache.Set(conv.ID, conv.Clone())
	return nil
}

// FindByLink 直接查询底层存储，结果按 ID 回填缓存。
func (r *CachedRepository) FindByLink(ctx context.Context, link string) (*model.Conversation, error) {
	conv, err := r.next.FindByLink(ctx, link)
	if err != nil {
		return nil, err
	}
	r.cache.Set(conv.ID, conv.Clone())
	return conv, nil
}
