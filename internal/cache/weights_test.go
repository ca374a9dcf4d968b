package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcart/discovery/internal/catalog"
	"github.com/smartcart/discovery/internal/store"
)

// countingRepo counts ActiveWeights reads hitting the repository.
type countingRepo struct {
	*store.MemoryRepository
	reads atomic.Int64
}

func (r *countingRepo) ActiveWeights(ctx context.Context) (*catalog.RankingWeights, error) {
	r.reads.Add(1)
	return r.MemoryRepository.ActiveWeights(ctx)
}

func TestWeightsCacheServesFromCache(t *testing.T) {
	repo := &countingRepo{MemoryRepository: store.NewMemoryRepository()}
	c := NewWeightsCache(repo)
	ctx := context.Background()

	first, err := c.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, "default", first.Name)

	_, err = c.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), repo.reads.Load())
}

func TestWeightsCacheUpdateInvalidates(t *testing.T) {
	repo := &countingRepo{MemoryRepository: store.NewMemoryRepository()}
	c := NewWeightsCache(repo)
	ctx := context.Background()

	_, err := c.Active(ctx)
	require.NoError(t, err)

	updated := catalog.RankingWeights{
		Name: "experiment", Alpha: 0.6, Beta: 0.2, Gamma: 0.1,
		Delta: 0.05, Epsilon: 0.05, Active: true,
	}
	require.NoError(t, c.Update(ctx, &updated))

	w, err := c.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, "experiment", w.Name)
	assert.InDelta(t, 0.6, w.Alpha, 1e-9)
}

func TestWeightsCacheExpires(t *testing.T) {
	repo := &countingRepo{MemoryRepository: store.NewMemoryRepository()}
	c := NewWeightsCache(repo)
	ctx := context.Background()

	_, err := c.Active(ctx)
	require.NoError(t, err)
	c.Invalidate()

	_, err = c.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), repo.reads.Load())

	// The TTL itself stays short enough that out-of-process weight updates
	// become visible quickly.
	assert.LessOrEqual(t, WeightsTTL, 5*time.Second)
}
