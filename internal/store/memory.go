package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/smartcart/discovery/internal/catalog"
)

// MemoryIndex is a linear-scan vector index. At the target catalog scale
// (10^3–10^5 items) a full cosine scan is fast enough and keeps recall exact.
// Scans are read-mostly and safe under concurrency; upserts serialize on a
// single writer lock.
type MemoryIndex struct {
	dims int

	mu      sync.RWMutex
	vectors map[int64][]float32
}

// Verify interface implementation at compile time.
var _ VectorIndex = (*MemoryIndex)(nil)

// NewMemoryIndex creates a linear-scan index for vectors of the given
// dimension.
func NewMemoryIndex(dims int) *MemoryIndex {
	return &MemoryIndex{
		dims:    dims,
		vectors: make(map[int64][]float32),
	}
}

// Upsert replaces the vector for a product id.
func (idx *MemoryIndex) Upsert(ctx context.Context, productID int64, vector []float32) error {
	if len(vector) != idx.dims {
		return ErrDimensionMismatch{Expected: idx.dims, Got: len(vector)}
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)

	idx.mu.Lock()
	idx.vectors[productID] = vec
	idx.mu.Unlock()
	return nil
}

// Lookup returns the stored vector for a product id.
func (idx *MemoryIndex) Lookup(ctx context.Context, productID int64) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	v, ok := idx.vectors[productID]
	return v, ok
}

// Scan returns up to k products with the highest cosine similarity to query.
// Ties break by product id ascending. Vectors that are not unit length are
// logged and skipped; the scan proceeds.
func (idx *MemoryIndex) Scan(ctx context.Context, query []float32, filter *ScanFilter, k int,
	resolve func(int64) *catalog.Product) ([]VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	hits := make([]VectorHit, 0, len(idx.vectors))
	for id, vec := range idx.vectors {
		if !IsUnitVector(vec, 1e-3) {
			slog.Warn("skipping non-normalized vector in index", "product_id", id)
			continue
		}
		if resolve != nil {
			p := resolve(id)
			if p == nil || !filter.Matches(p) {
				continue
			}
		}
		hits = append(hits, VectorHit{ProductID: id, Score: Cosine(query, vec)})
	}
	idx.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ProductID < hits[j].ProductID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Remove drops a product's vector.
func (idx *MemoryIndex) Remove(ctx context.Context, productID int64) error {
	idx.mu.Lock()
	delete(idx.vectors, productID)
	idx.mu.Unlock()
	return nil
}

// Len returns the number of indexed vectors.
func (idx *MemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// Warm bulk-inserts stored embeddings into any index, typically at startup
// from the repository. Rows with the wrong dimension are skipped and counted.
func Warm(ctx context.Context, idx VectorIndex, embeddings []catalog.Embedding) (loaded, skipped int) {
	for i := range embeddings {
		e := &embeddings[i]
		if err := idx.Upsert(ctx, e.ProductID, e.Vector); err != nil {
			slog.Warn("skipping embedding on index warmup", "product_id", e.ProductID, "error", err)
			skipped++
			continue
		}
		loaded++
	}
	return loaded, skipped
}
