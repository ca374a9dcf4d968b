package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smartcart/discovery/internal/recommend"
)

// TrendingTTL is how long a computed trending list is served before being
// recomputed. Trending is session-independent, so one entry serves everyone.
const TrendingTTL = 60 * time.Second

// TrendingCache caches trending lists in Redis, falling back to computing
// through when Redis is absent or unreachable. A nil client disables caching
// entirely.
type TrendingCache struct {
	client *redis.Client
	source *recommend.Recommender
	logger *slog.Logger
}

// NewTrendingCache wraps a recommender with a Redis cache. client may be nil
// for cache-less operation.
func NewTrendingCache(client *redis.Client, source *recommend.Recommender, logger *slog.Logger) *TrendingCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrendingCache{client: client, source: source, logger: logger}
}

func trendingKey(limit int) string {
	return fmt.Sprintf("smartcart:trending:%d", limit)
}

// Trending returns the trending list, served from Redis within the TTL.
// Cache failures degrade to a direct computation, never to an error.
func (c *TrendingCache) Trending(ctx context.Context, limit int) ([]recommend.Recommendation, error) {
	if c.client == nil {
		return c.source.Trending(ctx, limit)
	}

	key := trendingKey(limit)
	if payload, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var recs []recommend.Recommendation
		if err := json.Unmarshal(payload, &recs); err == nil {
			return recs, nil
		}
		c.logger.Warn("dropping corrupt trending cache entry", "key", key)
		c.client.Del(ctx, key)
	} else if err != redis.Nil {
		c.logger.Warn("trending cache unavailable, computing directly", "error", err)
		return c.source.Trending(ctx, limit)
	}

	recs, err := c.source.Trending(ctx, limit)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(recs); err == nil {
		if err := c.client.Set(ctx, key, payload, TrendingTTL).Err(); err != nil {
			c.logger.Warn("failed to cache trending list", "error", err)
		}
	}
	return recs, nil
}

// Invalidate drops every cached trending list, typically after a catalog
// upload changes the featured set.
func (c *TrendingCache) Invalidate(ctx context.Context) {
	if c.client == nil {
		return
	}
	iter := c.client.Scan(ctx, 0, "smartcart:trending:*", 0).Iterator()
	for iter.Next(ctx) {
		c.client.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("trending cache invalidation incomplete", "error", err)
	}
}
