// Package store provides the persistence layer for the discovery engine: the
// in-memory and HNSW vector indexes and the Postgres repository that owns all
// persisted rows (products, embeddings, sessions, interactions, weights,
// search logs, explanations, metrics, upload jobs).
package store

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/smartcart/discovery/internal/catalog"
)

// VectorHit is one scan result: a product id and its cosine similarity to the
// query vector.
type VectorHit struct {
	ProductID int64
	Score     float64
}

// ScanFilter restricts a vector scan to products matching catalog criteria.
// The zero value matches everything.
type ScanFilter struct {
	Category    string
	MinPrice    *float64
	MaxPrice    *float64
	InStockOnly bool
}

// Matches reports whether a product passes the filter. Category matching is
// case-insensitive substring, mirroring the search API contract.
func (f *ScanFilter) Matches(p *catalog.Product) bool {
	if f == nil {
		return true
	}
	if f.Category != "" && !containsFold(p.Category, f.Category) {
		return false
	}
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	if f.InStockOnly && p.Availability != catalog.AvailabilityInStock {
		return false
	}
	return true
}

// VectorIndex stores product embeddings and answers top-k cosine queries.
// Implementations must break score ties by product id ascending so scans are
// deterministic. Scans tolerate concurrent upserts.
type VectorIndex interface {
	// Upsert replaces the vector for a product id.
	Upsert(ctx context.Context, productID int64, vector []float32) error

	// Lookup returns the stored vector, or nil when the product has none.
	Lookup(ctx context.Context, productID int64) ([]float32, bool)

	// Scan returns up to k products with the highest cosine similarity to
	// query among those whose catalog row satisfies filter. resolve maps a
	// product id to its catalog row for filtering; a nil resolve skips
	// catalog filtering.
	Scan(ctx context.Context, query []float32, filter *ScanFilter, k int,
		resolve func(int64) *catalog.Product) ([]VectorHit, error)

	// Remove drops a product's vector. Removing an absent id is a no-op.
	Remove(ctx context.Context, productID int64) error

	// Len returns the number of indexed vectors.
	Len() int
}

// Repository is the transactional boundary for all persisted state. Every
// public write is a single logical transaction. Connectivity loss yields a
// typed Unavailable error; it never crashes the process.
type Repository interface {
	// Products.
	CreateProduct(ctx context.Context, p *catalog.Product) error
	UpdateProduct(ctx context.Context, p *catalog.Product) error
	DeleteProduct(ctx context.Context, id int64) error
	GetProduct(ctx context.Context, id int64) (*catalog.Product, error)
	RecentProducts(ctx context.Context, limit int) ([]catalog.Product, error)
	FeaturedProducts(ctx context.Context, limit int) ([]catalog.Product, error)
	ProductsByCategory(ctx context.Context, category string, limit int) ([]catalog.Product, error)
	KeywordSearch(ctx context.Context, query string, limit int) ([]catalog.Product, error)
	ProductsMissingEmbedding(ctx context.Context, limit int) ([]catalog.Product, error)

	// Embeddings, idempotent upsert keyed by product id.
	UpsertEmbedding(ctx context.Context, e *catalog.Embedding) error
	DeleteEmbedding(ctx context.Context, productID int64) error
	GetEmbedding(ctx context.Context, productID int64) (*catalog.Embedding, error)
	AllEmbeddings(ctx context.Context) ([]catalog.Embedding, error)

	// Sessions and interactions.
	TouchSession(ctx context.Context, id string, now time.Time) (*catalog.Session, error)
	GetSession(ctx context.Context, id string) (*catalog.Session, error)
	AddInteraction(ctx context.Context, i *catalog.Interaction) error
	RecentInteractions(ctx context.Context, sessionID string, limit int) ([]catalog.Interaction, error)

	// Ranking weights. ActiveWeights materializes and activates the default
	// row when none is active (single upsert, never recursive).
	ActiveWeights(ctx context.Context) (*catalog.RankingWeights, error)
	UpdateWeights(ctx context.Context, w *catalog.RankingWeights) error

	// Search logs and per-result explanations, written together.
	SaveSearchLog(ctx context.Context, log *catalog.SearchLog, explanations []catalog.SearchResultExplanation) error
	GetSearchLog(ctx context.Context, id int64) (*catalog.SearchLog, error)
	LatestSearchLog(ctx context.Context, sessionID, query string) (*catalog.SearchLog, error)
	ListSearchLogs(ctx context.Context, limit int) ([]catalog.SearchLog, error)
	ExplanationsForLog(ctx context.Context, searchLogID int64) ([]catalog.SearchResultExplanation, error)
	MarkExplanationClicked(ctx context.Context, searchLogID, productID int64) error

	// Evaluation metrics.
	SaveMetric(ctx context.Context, m *catalog.EvaluationMetric) error
	ListMetrics(ctx context.Context, limit int) ([]catalog.EvaluationMetric, error)

	// Catalog upload jobs.
	CreateUploadJob(ctx context.Context, j *catalog.CatalogUploadJob) error
	UpdateUploadJob(ctx context.Context, j *catalog.CatalogUploadJob) error
	GetUploadJob(ctx context.Context, id string) (*catalog.CatalogUploadJob, error)

	Ping(ctx context.Context) error
	Close() error
}

// Cosine returns the cosine similarity of two vectors. Dimension mismatches
// and zero vectors yield 0, never an error; a corrupt vector must not take
// down a query.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// IsUnitVector reports whether |v|₂ is within tolerance of 1.
func IsUnitVector(v []float32, tolerance float64) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Abs(math.Sqrt(sum)-1) <= tolerance
}

// ErrDimensionMismatch reports an embedding whose dimension does not match
// the index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// containsFold is a case-insensitive substring test.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
