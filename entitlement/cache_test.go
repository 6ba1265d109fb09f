package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// The durable scope needs a live redis; these tests run against the
// session scope, which carries the same TTL contract.
func newSessionCache(now func() time.Time) *StatusCache {
	c := NewStatusCache(nil)
	c.now = now
	return c
}

func TestCacheReadMissing(t *testing.T) {
	cache := newSessionCache(time.Now)

	value, fresh := cache.Read(context.Background(), "u1")

	assert.False(t, value)
	assert.False(t, fresh)
}

func TestCacheWriteThenRead(t *testing.T) {
	cache := newSessionCache(time.Now)

	cache.Write(context.Background(), "u1", true)
	value, fresh := cache.Read(context.Background(), "u1")

	assert.True(t, value)
	assert.True(t, fresh)
}

func TestCacheEntryGoesStaleAfterTTL(t *testing.T) {
	current := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	cache := newSessionCache(func() time.Time { return current })

	cache.Write(context.Background(), "u1", true)

	current = current.Add(CacheTTL - time.Minute)
	value, fresh := cache.Read(context.Background(), "u1")
	assert.True(t, value)
	assert.True(t, fresh)

	current = current.Add(2 * time.Minute)
	value, fresh = cache.Read(context.Background(), "u1")
	assert.True(t, value)
	assert.False(t, fresh, "a value older than the TTL must not count as fresh")
}

func TestCacheNegativeValueIsCachedToo(t *testing.T) {
	cache := newSessionCache(time.Now)

	cache.Write(context.Background(), "u1", false)
	value, fresh := cache.Read(context.Background(), "u1")

	assert.False(t, value)
	assert.True(t, fresh)
}

func TestCacheInvalidate(t *testing.T) {
	cache := newSessionCache(time.Now)

	cache.Write(context.Background(), "u1", true)
	cache.Invalidate(context.Background(), "u1")
	_, fresh := cache.Read(context.Background(), "u1")

	assert.False(t, fresh)
}

func TestCacheScopesAreIsolatedPerUser(t *testing.T) {
	cache := newSessionCache(time.Now)

	cache.Write(context.Background(), "u1", true)
	cache.Write(context.Background(), "u2", false)

	v1, _ := cache.Read(context.Background(), "u1")
	v2, _ := cache.Read(context.Background(), "u2")

	assert.True(t, v1)
	assert.False(t, v2)
}
