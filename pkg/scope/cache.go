package scope

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const scopeKeyPrefix = "orgscope:scope:"

// TieredCache caches computed scopes in a process-local expirable LRU
// backed by an optional shared Redis tier. All operations are best-effort:
// a Redis failure reads as a miss and writes are dropped silently, so a
// cache outage degrades to recomputation.
//
// InvalidateAll clears this process's local tier and the shared Redis tier.
// Local tiers on other instances age out within the TTL, which bounds how
// long a stale scope can survive a tree mutation.
type TieredCache struct {
	local  *lru.LRU[string, *AccessScope]
	redis  *redis.Client
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

// NewTieredCache creates a scope cache with maxEntries local slots and the
// given TTL for both tiers. redisClient may be nil for a memory-only cache.
func NewTieredCache(maxEntries int, redisClient *redis.Client, ttl time.Duration) *TieredCache {
	if maxEntries < 16 {
		maxEntries = 16
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TieredCache{
		local: lru.NewLRU[string, *AccessScope](maxEntries, nil, ttl),
		redis: redisClient,
		ttl:   ttl,
	}
}

// Get returns the cached scope for actorID, checking the local tier before
// Redis. Redis hits are promoted into the local tier.
func (c *TieredCache) Get(ctx context.Context, actorID string) (*AccessScope, bool) {
	if scope, ok := c.local.Get(actorID); ok {
		c.hits.Add(1)
		return scope, true
	}

	if c.redis != nil {
		data, err := c.redis.Get(ctx, scopeKeyPrefix+actorID).Result()
		if err == nil {
			var scope AccessScope
			if err := json.Unmarshal([]byte(data), &scope); err == nil {
				c.local.Add(actorID, &scope)
				c.hits.Add(1)
				return &scope, true
			}
			// Corrupt entry, drop it rather than serve it again.
			c.redis.Del(ctx, scopeKeyPrefix+actorID)
		}
	}

	c.misses.Add(1)
	return nil, false
}

// Set stores the scope in both tiers.
func (c *TieredCache) Set(ctx context.Context, actorID string, scope *AccessScope) {
	c.local.Add(actorID, scope)

	if c.redis != nil {
		if data, err := json.Marshal(scope); err == nil {
			c.redis.Set(ctx, scopeKeyPrefix+actorID, data, c.ttl)
		}
	}
}

// Invalidate drops one actor's scope from both tiers.
func (c *TieredCache) Invalidate(ctx context.Context, actorID string) {
	c.local.Remove(actorID)

	if c.redis != nil {
		c.redis.Del(ctx, scopeKeyPrefix+actorID)
	}
}

// InvalidateAll drops every cached scope. Only keys under the scope prefix
// are touched; the Redis database may be shared with other data.
func (c *TieredCache) InvalidateAll(ctx context.Context) {
	c.local.Purge()

	if c.redis == nil {
		return
	}
	iter := c.redis.Scan(ctx, 0, scopeKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		c.redis.Del(ctx, iter.Val())
	}
}

// Stats returns hit and miss counters for the cache.
func (c *TieredCache) Stats() map[string]interface{} {
	hits := c.hits.Load()
	misses := c.misses.Load()
	stats := map[string]interface{}{
		"hits":        hits,
		"misses":      misses,
		"local_items": c.local.Len(),
	}
	if total := hits + misses; total > 0 {
		stats["hit_rate"] = fmt.Sprintf("%.2f", float64(hits)/float64(total))
	}
	return stats
}
