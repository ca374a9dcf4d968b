// Package cache holds the read-side caches: a short-TTL cache for the active
// ranking weights and a Redis-backed cache for the trending list.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/smartcart/discovery/internal/catalog"
	"github.com/smartcart/discovery/internal/store"
)

// WeightsTTL bounds staleness of the active weights; a weight update is
// visible to every search within this window.
const WeightsTTL = 5 * time.Second

const weightsKey = "active"

// WeightsCache memoizes the active ranking weights in front of the
// repository. Updates flow through the cache so invalidation is immediate in
// the writing process.
type WeightsCache struct {
	repo  store.Repository
	cache *expirable.LRU[string, catalog.RankingWeights]
}

// NewWeightsCache creates a weights cache with the default TTL.
func NewWeightsCache(repo store.Repository) *WeightsCache {
	return &WeightsCache{
		repo:  repo,
		cache: expirable.NewLRU[string, catalog.RankingWeights](1, nil, WeightsTTL),
	}
}

// Active returns the active weights, served from cache within the TTL.
func (c *WeightsCache) Active(ctx context.Context) (*catalog.RankingWeights, error) {
	if w, ok := c.cache.Get(weightsKey); ok {
		return &w, nil
	}

	w, err := c.repo.ActiveWeights(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Add(weightsKey, *w)
	return w, nil
}

// Update writes weights through to the repository and invalidates the cache.
func (c *WeightsCache) Update(ctx context.Context, w *catalog.RankingWeights) error {
	if err := c.repo.UpdateWeights(ctx, w); err != nil {
		return err
	}
	c.cache.Remove(weightsKey)
	return nil
}

// Invalidate drops the cached weights, forcing the next read through.
func (c *WeightsCache) Invalidate() {
	c.cache.Remove(weightsKey)
}
