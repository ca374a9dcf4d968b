package store

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcart/discovery/internal/catalog"
)

func unit(dims int, axis int) []float32 {
	v := make([]float32, dims)
	v[axis] = 1
	return v
}

func TestCosine(t *testing.T) {
	a := []float32{0.6, 0.8}
	b := []float32{0.8, 0.6}

	t.Run("self similarity is one", func(t *testing.T) {
		assert.InDelta(t, 1.0, Cosine(a, a), 1e-5)
	})

	t.Run("opposite vectors", func(t *testing.T) {
		neg := []float32{-0.6, -0.8}
		assert.InDelta(t, -1.0, Cosine(a, neg), 1e-5)
	})

	t.Run("orthogonal vectors", func(t *testing.T) {
		assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-5)
	})

	t.Run("dimension mismatch yields zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Cosine(a, []float32{1, 2, 3}))
	})

	t.Run("zero vector yields zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Cosine(a, []float32{0, 0}))
	})

	t.Run("empty vectors yield zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Cosine(nil, nil))
	})

	t.Run("symmetric", func(t *testing.T) {
		assert.InDelta(t, Cosine(a, b), Cosine(b, a), 1e-9)
	})
}

func TestIsUnitVector(t *testing.T) {
	assert.True(t, IsUnitVector([]float32{1, 0, 0}, 1e-3))
	assert.True(t, IsUnitVector([]float32{0.6, 0.8}, 1e-3))
	assert.False(t, IsUnitVector([]float32{1, 1}, 1e-3))
	assert.False(t, IsUnitVector([]float32{0, 0}, 1e-3))
}

func TestMemoryIndexScan(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(4)

	require.NoError(t, idx.Upsert(ctx, 1, unit(4, 0)))
	require.NoError(t, idx.Upsert(ctx, 2, unit(4, 1)))
	require.NoError(t, idx.Upsert(ctx, 3, []float32{
		float32(math.Sqrt2 / 2), float32(math.Sqrt2 / 2), 0, 0,
	}))

	hits, err := idx.Scan(ctx, unit(4, 0), nil, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, int64(1), hits[0].ProductID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.Equal(t, int64(3), hits[1].ProductID)
	assert.InDelta(t, math.Sqrt2/2, hits[1].Score, 1e-5)
	assert.Equal(t, int64(2), hits[2].ProductID)
}

func TestMemoryIndexTieBreakByID(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	// Three identical vectors score identically; order must be id ascending.
	for _, id := range []int64{42, 7, 19} {
		require.NoError(t, idx.Upsert(ctx, id, []float32{1, 0}))
	}

	hits, err := idx.Scan(ctx, []float32{1, 0}, nil, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []int64{7, 19, 42},
		[]int64{hits[0].ProductID, hits[1].ProductID, hits[2].ProductID})
}

func TestMemoryIndexSkipsNonUnitVectors(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	require.NoError(t, idx.Upsert(ctx, 1, []float32{1, 0}))
	require.NoError(t, idx.Upsert(ctx, 2, []float32{3, 4})) // |v| = 5

	hits, err := idx.Scan(ctx, []float32{1, 0}, nil, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), hits[0].ProductID)
}

func TestMemoryIndexFilter(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	require.NoError(t, idx.Upsert(ctx, 1, []float32{1, 0}))
	require.NoError(t, idx.Upsert(ctx, 2, []float32{0.6, 0.8}))

	products := map[int64]*catalog.Product{
		1: {ID: 1, Category: "Electronics", Price: 199, Availability: catalog.AvailabilityInStock},
		2: {ID: 2, Category: "Kitchen", Price: 49, Availability: catalog.AvailabilityOutOfStock},
	}
	resolve := func(id int64) *catalog.Product { return products[id] }

	t.Run("category substring case-insensitive", func(t *testing.T) {
		hits, err := idx.Scan(ctx, []float32{1, 0}, &ScanFilter{Category: "electron"}, 10, resolve)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, int64(1), hits[0].ProductID)
	})

	t.Run("price bounds", func(t *testing.T) {
		max := 100.0
		hits, err := idx.Scan(ctx, []float32{1, 0}, &ScanFilter{MaxPrice: &max}, 10, resolve)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, int64(2), hits[0].ProductID)
	})

	t.Run("in stock only", func(t *testing.T) {
		hits, err := idx.Scan(ctx, []float32{1, 0}, &ScanFilter{InStockOnly: true}, 10, resolve)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, int64(1), hits[0].ProductID)
	})

	t.Run("unresolvable ids are dropped", func(t *testing.T) {
		require.NoError(t, idx.Upsert(ctx, 99, []float32{1, 0}))
		hits, err := idx.Scan(ctx, []float32{1, 0}, &ScanFilter{Category: "x"}, 10, resolve)
		require.NoError(t, err)
		assert.Empty(t, hits)
		require.NoError(t, idx.Remove(ctx, 99))
	})
}

func TestMemoryIndexUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	require.NoError(t, idx.Upsert(ctx, 1, []float32{1, 0}))
	require.NoError(t, idx.Upsert(ctx, 1, []float32{0, 1}))
	assert.Equal(t, 1, idx.Len())

	v, ok := idx.Lookup(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, v)
}

func TestMemoryIndexRemove(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	require.NoError(t, idx.Upsert(ctx, 1, []float32{1, 0}))
	require.NoError(t, idx.Remove(ctx, 1))
	require.NoError(t, idx.Remove(ctx, 1)) // absent id is a no-op
	assert.Equal(t, 0, idx.Len())

	_, ok := idx.Lookup(ctx, 1)
	assert.False(t, ok)
}

func TestMemoryIndexDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(4)

	err := idx.Upsert(ctx, 1, []float32{1, 0})
	require.Error(t, err)
}

func TestWarmSkipsMismatchedRows(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	loaded, skipped := Warm(ctx, idx, []catalog.Embedding{
		{ProductID: 1, Vector: []float32{1, 0}},
		{ProductID: 2, Vector: []float32{0, 1, 0}}, // wrong dimension
	})
	assert.Equal(t, 1, loaded)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 1, idx.Len())
}
