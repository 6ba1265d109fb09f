package entitlement

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/CodyKolby/copywritely-ai-sub001/utils"

	"github.com/redis/go-redis/v9"
)

// CacheTTL is the freshness window for a cached premium status. A cached
// value bounds the maximum overclaim during an offline window to this TTL.
const CacheTTL = 12 * time.Hour

const (
	cacheStatusKey    = "premium_status:"
	cacheTimestampKey = "premium_timestamp:"
)

type cacheEntry struct {
	isPremium bool
	writtenAt time.Time
}

// StatusCache mirrors the resolved premium status across two scopes: a
// durable one (redis) and a session-scoped in-process one. The cache is
// always subordinate to server state; the resolver only consults it after
// every higher-precedence source timed out.
type StatusCache struct {
	rdb *redis.Client // durable scope, may be nil
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	session map[string]cacheEntry
}

func NewStatusCache(rdb *redis.Client) *StatusCache {
	return &StatusCache{
		rdb:     rdb,
		ttl:     CacheTTL,
		now:     time.Now,
		session: make(map[string]cacheEntry),
	}
}

// Read returns the cached premium value and whether it is still fresh. The
// durable scope is consulted first, the session scope covers redis outages.
func (c *StatusCache) Read(ctx context.Context, userID string) (bool, bool) {
	if entry, ok := c.readDurable(ctx, userID); ok {
		return entry.isPremium, c.fresh(entry)
	}

	c.mu.RLock()
	entry, ok := c.session[userID]
	c.mu.RUnlock()
	if !ok {
		return false, false
	}
	return entry.isPremium, c.fresh(entry)
}

// Write refreshes both scopes. Durable-scope failures are logged and the
// session scope keeps serving; the cache is best effort by contract.
func (c *StatusCache) Write(ctx context.Context, userID string, isPremium bool) {
	entry := cacheEntry{isPremium: isPremium, writtenAt: c.now()}

	c.mu.Lock()
	c.session[userID] = entry
	c.mu.Unlock()

	if c.rdb == nil {
		return
	}
	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, cacheStatusKey+userID, strconv.FormatBool(isPremium), c.ttl)
	pipe.Set(ctx, cacheTimestampKey+userID, strconv.FormatInt(entry.writtenAt.Unix(), 10), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		utils.LogError(err, "Could not write premium status to the durable cache")
	}
}

// Invalidate drops both scopes for a user, forcing the next resolution to
// hit server state.
func (c *StatusCache) Invalidate(ctx context.Context, userID string) {
	c.mu.Lock()
	delete(c.session, userID)
	c.mu.Unlock()

	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, cacheStatusKey+userID, cacheTimestampKey+userID).Err(); err != nil {
		utils.LogError(err, "Could not invalidate the durable premium cache")
	}
}

func (c *StatusCache) readDurable(ctx context.Context, userID string) (cacheEntry, bool) {
	if c.rdb == nil {
		return cacheEntry{}, false
	}
	status, err := c.rdb.Get(ctx, cacheStatusKey+userID).Result()
	if err != nil {
		return cacheEntry{}, false
	}
	stamp, err := c.rdb.Get(ctx, cacheTimestampKey+userID).Result()
	if err != nil {
		return cacheEntry{}, false
	}
	unix, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return cacheEntry{}, false
	}
	isPremium, err := strconv.ParseBool(status)
	if err != nil {
		return cacheEntry{}, false
	}
	return cacheEntry{isPremium: isPremium, writtenAt: time.Unix(unix, 0)}, true
}

func (c *StatusCache) fresh(entry cacheEntry) bool {
	return c.now().Sub(entry.writtenAt) < c.ttl
}
