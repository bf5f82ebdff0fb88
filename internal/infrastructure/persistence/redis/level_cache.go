package redis

import (
	"context"
	"errors"
	"time"

	"github.com/habitquest/duel-engine/internal/domain/leveling"
	"github.com/habitquest/duel-engine/internal/domain/shared"
)

// LevelCache implements leveling.Cache. Entries carry a TTL as a backstop for
// a missed invalidation.
type LevelCache struct {
	cache *Cache
	ttl   time.Duration
}

var _ leveling.Cache = (*LevelCache)(nil)

// NewLevelCache creates the cache. A non-positive ttl defaults to ten minutes.
func NewLevelCache(cache *Cache, ttl time.Duration) *LevelCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &LevelCache{cache: cache, ttl: ttl}
}

func (c *LevelCache) key(userID shared.UserID) string {
	return c.cache.Key("level", userID.String())
}

// Get returns nil, nil on a miss.
func (c *LevelCache) Get(ctx context.Context, userID shared.UserID) (*leveling.Info, error) {
	var info leveling.Info
	err := c.cache.Get(ctx, c.key(userID), &info)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, shared.Infrastructure("level_cache", "Get", err)
	}
	return &info, nil
}

// Set stores info for userID.
func (c *LevelCache) Set(ctx context.Context, userID shared.UserID, info leveling.Info) error {
	return shared.Infrastructure("level_cache", "Set", c.cache.Set(ctx, c.key(userID), info, c.ttl))
}

// Invalidate drops the entry for userID.
func (c *LevelCache) Invalidate(ctx context.Context, userID shared.UserID) error {
	return shared.Infrastructure("level_cache", "Invalidate", c.cache.Delete(ctx, c.key(userID)))
}
