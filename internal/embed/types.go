// Package embed provides text embedding for queries and product descriptions.
// Two providers are supported: a network sentence-embedding service (primary)
// and a deterministic pure-function fallback used in development and whenever
// the service is unreachable.
package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants.
const (
	// DefaultDimensions is the embedding dimension of the reference deployment
	// (all-MiniLM-L6-v2 via the sentence-embedding service).
	DefaultDimensions = 384

	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion).
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// DefaultColdTimeout is the timeout for the first request, when the model
	// may still need loading on the service side.
	DefaultColdTimeout = 60 * time.Second

	// DefaultWarmTimeout is the timeout once the model is known to be loaded.
	DefaultWarmTimeout = 2 * time.Second

	// ModelUnloadThreshold is the idle duration after which the service is
	// considered cold again.
	ModelUnloadThreshold = 5 * time.Minute

	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3
)

// Embedder generates vector embeddings for text. All returned vectors are
// L2-normalized to unit length so cosine reduces to dot product.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // zero vector stays as-is
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
