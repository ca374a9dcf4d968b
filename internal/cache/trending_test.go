package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcart/discovery/internal/catalog"
	"github.com/smartcart/discovery/internal/recommend"
	"github.com/smartcart/discovery/internal/store"
)

func trendingFixture(t *testing.T) (*store.MemoryRepository, *recommend.Recommender) {
	t.Helper()
	repo := store.NewMemoryRepository()
	rating := 4.9
	for i := 0; i < 3; i++ {
		r := rating - float64(i)*0.1
		p := catalog.Product{
			Title: "Hot", Price: 20, Rating: &r, Featured: true,
			Availability: catalog.AvailabilityInStock,
		}
		require.NoError(t, repo.CreateProduct(context.Background(), &p))
	}
	return repo, recommend.NewRecommender(repo, store.NewMemoryIndex(2), nil)
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestTrendingCacheHit(t *testing.T) {
	repo, rec := trendingFixture(t)
	client := testRedis(t)
	c := NewTrendingCache(client, rec, nil)
	ctx := context.Background()

	first, err := c.Trending(ctx, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)

	// Remove the featured products; the cached list must still serve.
	for _, r := range first {
		require.NoError(t, repo.DeleteProduct(ctx, r.Product.ID))
	}

	second, err := c.Trending(ctx, 3)
	require.NoError(t, err)
	require.Len(t, second, 3)
	assert.Equal(t, first[0].Product.ID, second[0].Product.ID)
	assert.Equal(t, "Trending now", second[0].Reason)
}

func TestTrendingCacheKeyedByLimit(t *testing.T) {
	_, rec := trendingFixture(t)
	c := NewTrendingCache(testRedis(t), rec, nil)
	ctx := context.Background()

	all, err := c.Trending(ctx, 10)
	require.NoError(t, err)
	top, err := c.Trending(ctx, 2)
	require.NoError(t, err)

	assert.Len(t, all, 3)
	assert.Len(t, top, 2)
}

func TestTrendingCacheInvalidate(t *testing.T) {
	repo, rec := trendingFixture(t)
	client := testRedis(t)
	c := NewTrendingCache(client, rec, nil)
	ctx := context.Background()

	first, err := c.Trending(ctx, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)

	require.NoError(t, repo.DeleteProduct(ctx, first[0].Product.ID))
	c.Invalidate(ctx)

	second, err := c.Trending(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, second, 2)
}

func TestTrendingCacheWithoutRedis(t *testing.T) {
	_, rec := trendingFixture(t)
	c := NewTrendingCache(nil, rec, nil)

	recs, err := c.Trending(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestTrendingCacheUnreachableRedisComputesDirectly(t *testing.T) {
	_, rec := trendingFixture(t)
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	srv.Close()

	c := NewTrendingCache(client, rec, nil)
	recs, err := c.Trending(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}
