package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func TestCache_GetSet(t *testing.T) {
	c := New[string, int](10, time.Minute)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestCache_EvictsOldestInserted(t *testing.T) {
	c := New[string, int](2, 0)
	c.Set("a", 1)
	c.Set("b", 2)

	// 读取 a 不影响淘汰顺序
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest inserted entry evicted even though it was read recently")
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCache_ResetKeepsInsertionSlot(t *testing.T) {
	c := New[string, int](2, 0)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)
	c.Set("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok)
	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestCache_TTL(t *testing.T) {
	clk := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string, string](0, 5*time.Second).WithClock(clk.Now)

	c.Set("k", "v")
	clk.Advance(4 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clk.Advance(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry removed on read")
}

func TestCache_Delete(t *testing.T) {
	c := New[int, int](0, 0)
	c.Set(1, 1)
	c.Delete(1)
	c.Delete(2)
	assert.Zero(t, c.Len())
}
