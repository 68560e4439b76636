package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRU_GetSet(t *testing.T) {
	c := New[string](2, time.Minute)

	c.Set("a", "gemini-1.5-flash")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "gemini-1.5-flash", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a") // a is now most recent
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	assert.Equal(t, 2, c.Len())
}

func TestLRU_TTLExpiry(t *testing.T) {
	c := New[int](10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	c.Set("b", 2)

	now = now.Add(2 * time.Minute)
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.CleanupExpired())
	assert.Equal(t, 0, c.Len())
}

func TestLRU_ZeroTTLNeverExpires(t *testing.T) {
	c := New[int](1, 0)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	now = now.Add(24 * time.Hour)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestLRU_DeleteClearStats(t *testing.T) {
	c := New[int](5, time.Second)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)

	v, _ := c.Get("a")
	assert.Equal(t, 10, v)

	c.Delete("a")
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, Stats{Capacity: 5, Size: 0, TTL: time.Second}, c.GetStats())
}
