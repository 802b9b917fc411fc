package cache

import (
	"alcyxob/session-tracker/internal/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultAnalyticsTTL bounds how stale cached analytics may get when a
// mutation's invalidation is lost.
const DefaultAnalyticsTTL = 5 * time.Minute

// AnalyticsCache stores computed analytics per owner.
type AnalyticsCache interface {
	// Get returns the cached analytics, or ok=false on a miss.
	Get(ctx context.Context, ownerID string) (a *domain.Analytics, ok bool, err error)
	Set(ctx context.Context, a *domain.Analytics) error
	Invalidate(ctx context.Context, ownerIDs ...string) error
}

func analyticsKey(ownerID string) string {
	return fmt.Sprintf("session-tracker:analytics:%s", ownerID)
}

type redisAnalyticsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisAnalyticsCache wraps a connected client.
func NewRedisAnalyticsCache(rdb *redis.Client, ttl time.Duration) AnalyticsCache {
	if ttl <= 0 {
		ttl = DefaultAnalyticsTTL
	}
	return &redisAnalyticsCache{rdb: rdb, ttl: ttl}
}

func (c *redisAnalyticsCache) Get(ctx context.Context, ownerID string) (*domain.Analytics, bool, error) {
	raw, err := c.rdb.Get(ctx, analyticsKey(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get analytics: %w", err)
	}
	var a domain.Analytics
	if err := json.Unmarshal(raw, &a); err != nil {
		// Corrupt entry: treat as a miss and let the caller recompute.
		log.Printf("WARN: Dropping unreadable analytics cache entry for %s: %v", ownerID, err)
		_ = c.rdb.Del(ctx, analyticsKey(ownerID)).Err()
		return nil, false, nil
	}
	return &a, true, nil
}

func (c *redisAnalyticsCache) Set(ctx context.Context, a *domain.Analytics) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, analyticsKey(a.OwnerID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("store analytics: %w", err)
	}
	return nil
}

func (c *redisAnalyticsCache) Invalidate(ctx context.Context, ownerIDs ...string) error {
	if len(ownerIDs) == 0 {
		return nil
	}
	keys := make([]string, len(ownerIDs))
	for i, id := range ownerIDs {
		keys[i] = analyticsKey(id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate analytics: %w", err)
	}
	return nil
}

// Connect opens a Redis client and verifies it with a ping.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}

// noopCache is used when no Redis address is configured. Every Get misses.
type noopCache struct{}

// NewNoopAnalyticsCache returns a cache that stores nothing.
func NewNoopAnalyticsCache() AnalyticsCache { return noopCache{} }

func (noopCache) Get(context.Context, string) (*domain.Analytics, bool, error) { return nil, false, nil }
func (noopCache) Set(context.Context, *domain.Analytics) error                 { return nil }
func (noopCache) Invalidate(context.Context, ...string) error                  { return nil }
