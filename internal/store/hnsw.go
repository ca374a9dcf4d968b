package store

import (
	"context"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/smartcart/discovery/internal/catalog"
)

// HNSWIndex is an approximate-nearest-neighbor drop-in for MemoryIndex using
// the coder/hnsw graph. It preserves cosine ordering within a small epsilon;
// exact recall is not a contract, but any product with cosine above 0.9 to
// the query appears in a realistic top-k.
//
// Upserts and removes use lazy deletion: the old graph node is orphaned and
// filtered out of scans. This sidesteps unreliable node removal in coder/hnsw
// at the cost of dead nodes until a rebuild.
type HNSWIndex struct {
	dims int

	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	idMap   map[int64]uint64    // product id -> live graph key
	keyMap  map[uint64]int64    // live graph key -> product id
	vectors map[int64][]float32 // live vectors, backs Lookup and exact re-scoring
	nextKey uint64
}

// Verify interface implementation at compile time.
var _ VectorIndex = (*HNSWIndex)(nil)

// overFetchFactor compensates for filtered-out and lazily deleted graph nodes
// during a scan.
const overFetchFactor = 4

// NewHNSWIndex creates an HNSW-backed index for vectors of the given
// dimension.
func NewHNSWIndex(dims int) *HNSWIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &HNSWIndex{
		dims:    dims,
		graph:   graph,
		idMap:   make(map[int64]uint64),
		keyMap:  make(map[uint64]int64),
		vectors: make(map[int64][]float32),
	}
}

// Upsert replaces the vector for a product id. A previous vector for the same
// id is orphaned in the graph and filtered out of scans.
func (idx *HNSWIndex) Upsert(ctx context.Context, productID int64, vector []float32) error {
	if len(vector) != idx.dims {
		return ErrDimensionMismatch{Expected: idx.dims, Got: len(vector)}
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if oldKey, exists := idx.idMap[productID]; exists {
		delete(idx.keyMap, oldKey) // orphan the old node
	}

	key := idx.nextKey
	idx.nextKey++

	idx.graph.Add(hnsw.MakeNode(key, vec))
	idx.idMap[productID] = key
	idx.keyMap[key] = productID
	idx.vectors[productID] = vec
	return nil
}

// Lookup returns the stored vector for a product id.
func (idx *HNSWIndex) Lookup(ctx context.Context, productID int64) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	v, ok := idx.vectors[productID]
	return v, ok
}

// Scan returns up to k products by cosine similarity. The graph is queried
// with an over-fetch to absorb filter rejections and orphans, then results
// are re-scored with exact cosine and tie-broken by product id ascending.
func (idx *HNSWIndex) Scan(ctx context.Context, query []float32, filter *ScanFilter, k int,
	resolve func(int64) *catalog.Product) ([]VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) != idx.dims {
		return nil, ErrDimensionMismatch{Expected: idx.dims, Got: len(query)}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.graph.Len() == 0 {
		return []VectorHit{}, nil
	}

	fetch := k * overFetchFactor
	if fetch > idx.graph.Len() {
		fetch = idx.graph.Len()
	}
	nodes := idx.graph.Search(query, fetch)

	hits := make([]VectorHit, 0, len(nodes))
	for _, node := range nodes {
		productID, ok := idx.keyMap[node.Key]
		if !ok {
			continue // orphaned by upsert/remove
		}
		if resolve != nil {
			p := resolve(productID)
			if p == nil || !filter.Matches(p) {
				continue
			}
		}
		hits = append(hits, VectorHit{ProductID: productID, Score: Cosine(query, idx.vectors[productID])})
	}

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

// Remove drops a product's vector via lazy deletion.
func (idx *HNSWIndex) Remove(ctx context.Context, productID int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if key, exists := idx.idMap[productID]; exists {
		delete(idx.keyMap, key)
		delete(idx.idMap, productID)
		delete(idx.vectors, productID)
	}
	return nil
}

// Len returns the number of live vectors.
func (idx *HNSWIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}
