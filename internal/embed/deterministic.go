package embed

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/smartcart/discovery/internal/errors"
)

// DeterministicEmbedder maps text to a unit vector with a pure function.
// It needs no network or model download and is stable across restarts and
// processes, which makes it suitable for development and as the per-request
// fallback when the embedding service is down or a product lacks a stored
// vector. Its cosine scores are poor relative to real sentence embeddings;
// the ranker compensates with feature scores and the keyword-match boost.
type DeterministicEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time.
var _ Embedder = (*DeterministicEmbedder)(nil)

// NewDeterministicEmbedder creates a deterministic embedder with the given
// dimension. Zero means DefaultDimensions.
func NewDeterministicEmbedder(dims int) *DeterministicEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &DeterministicEmbedder{dims: dims}
}

// Embed generates a deterministic embedding for a single text.
// For each output index i, the component is
// tanh(0.001 * Σ_j codepoint(t_j) * sin(0.01*(i+1)*(j+1))), L2-normalized.
func (e *DeterministicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, "embedder is closed", nil)
	}
	e.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	codepoints := []rune(strings.ToLower(text))
	vector := make([]float32, e.dims)
	for i := 0; i < e.dims; i++ {
		var sum float64
		for j, cp := range codepoints {
			sum += float64(cp) * math.Sin(0.01*float64(i+1)*float64(j+1))
		}
		vector[i] = float32(math.Tanh(0.001 * sum))
	}

	return normalizeVector(vector), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *DeterministicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// Dimensions returns the embedding dimension.
func (e *DeterministicEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *DeterministicEmbedder) ModelName() string {
	return "deterministic-v1"
}

// Available always reports true; the embedder has no external dependency.
func (e *DeterministicEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *DeterministicEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
