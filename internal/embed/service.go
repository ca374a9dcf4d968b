package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/smartcart/discovery/internal/errors"
)

// DefaultServiceURL is the local sentence-embedding service endpoint.
const DefaultServiceURL = "http://localhost:8000"

// ServiceConfig configures the network embedder.
type ServiceConfig struct {
	// URL is the base URL of the embedding service.
	URL string
	// Model is the reported model tag. Informational; the service decides.
	Model string
	// Dimensions is the expected embedding dimension (default 384).
	Dimensions int
	// WarmTimeout bounds requests when the model is loaded.
	WarmTimeout time.Duration
	// ColdTimeout bounds the first request, when the model may need loading.
	ColdTimeout time.Duration
	// MaxRetries is the number of retry attempts per request.
	MaxRetries int
	// BatchSize caps texts per batch request.
	BatchSize int
}

// ServiceEmbedder generates embeddings by calling the sentence-embedding
// service over HTTP. A failure within the timeout budget is recoverable:
// the orchestrator falls back to the deterministic provider for that request.
type ServiceEmbedder struct {
	client *http.Client
	config ServiceConfig

	mu       sync.RWMutex
	closed   bool
	lastCall time.Time // warm/cold timeout detection
}

// Verify interface implementation at compile time.
var _ Embedder = (*ServiceEmbedder)(nil)

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Dimension int       `json:"dimension"`
}

type batchEmbedRequest struct {
	Texts []string `json:"texts"`
}

type batchEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Dimension  int         `json:"dimension"`
	Count      int         `json:"count"`
}

// NewServiceEmbedder creates a network embedder for the given config.
// No health check is performed here; callers use Available or Warmup.
func NewServiceEmbedder(cfg ServiceConfig) *ServiceEmbedder {
	if cfg.URL == "" {
		cfg.URL = DefaultServiceURL
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.WarmTimeout <= 0 {
		cfg.WarmTimeout = DefaultWarmTimeout
	}
	if cfg.ColdTimeout <= 0 {
		cfg.ColdTimeout = DefaultColdTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}

	// Timeouts are applied per request via context so warm/cold budgets work;
	// a static client timeout would override them.
	transport := &http.Transport{
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     30 * time.Second,
	}

	return &ServiceEmbedder{
		client: &http.Client{Transport: transport},
		config: cfg,
	}
}

// requestTimeout picks the warm or cold budget based on time since last call.
func (e *ServiceEmbedder) requestTimeout() time.Duration {
	e.mu.RLock()
	last := e.lastCall
	e.mu.RUnlock()

	if last.IsZero() || time.Since(last) > ModelUnloadThreshold {
		return e.config.ColdTimeout
	}
	return e.config.WarmTimeout
}

func (e *ServiceEmbedder) markCalled() {
	e.mu.Lock()
	e.lastCall = time.Now()
	e.mu.Unlock()
}

// Embed generates an embedding for a single text.
func (e *ServiceEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, "embedder is closed", nil)
	}
	e.mu.RUnlock()

	var resp embedResponse
	err := WithRetry(ctx, RetryConfig{MaxRetries: e.config.MaxRetries}, func() error {
		return e.post(ctx, "/embed", embedRequest{Text: text}, &resp)
	})
	if err != nil {
		return nil, err
	}
	e.markCalled()

	if len(resp.Embedding) != e.config.Dimensions {
		return nil, errors.New(errors.ErrCodeDimensionInvalid,
			fmt.Sprintf("service returned %d dimensions, expected %d",
				len(resp.Embedding), e.config.Dimensions), nil)
	}

	return normalizeVector(resp.Embedding), nil
}

// EmbedBatch generates embeddings for multiple texts, chunked by BatchSize.
func (e *ServiceEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		var resp batchEmbedResponse
		err := WithRetry(ctx, RetryConfig{MaxRetries: e.config.MaxRetries}, func() error {
			return e.post(ctx, "/embed/batch", batchEmbedRequest{Texts: texts[start:end]}, &resp)
		})
		if err != nil {
			return nil, err
		}
		e.markCalled()

		if len(resp.Embeddings) != end-start {
			return nil, errors.New(errors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("service returned %d embeddings for %d texts",
					len(resp.Embeddings), end-start), nil)
		}
		for _, v := range resp.Embeddings {
			out = append(out, normalizeVector(v))
		}
	}

	return out, nil
}

// post issues one JSON request within the current warm/cold timeout budget.
func (e *ServiceEmbedder) post(ctx context.Context, path string, body, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(errors.ErrCodeEmbeddingFailed, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.requestTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.URL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(errors.ErrCodeEmbeddingFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		// Distinguish our per-request deadline from caller cancellation.
		if reqCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return errors.New(errors.ErrCodeEmbeddingTimeout,
				fmt.Sprintf("embedding service did not answer within %s", e.requestTimeout()), err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.New(errors.ErrCodeEmbeddingUnavailable,
			"embedding service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.New(errors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedding service returned %d: %s", resp.StatusCode, string(data)), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return errors.Wrap(errors.ErrCodeEmbeddingFailed, err)
	}
	return nil
}

// Available reports whether the service answers its health endpoint.
func (e *ServiceEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, e.config.URL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Warmup asks the service to preload its model so the first real query gets
// the warm budget. Errors are reported but non-fatal.
func (e *ServiceEmbedder) Warmup(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.ColdTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.URL+"/preload-model", nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeEmbeddingUnavailable, err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return errors.New(errors.ErrCodeEmbeddingUnavailable, "model preload failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.ErrCodeEmbeddingUnavailable,
			fmt.Sprintf("model preload returned %d", resp.StatusCode), nil)
	}

	e.markCalled()
	slog.Debug("embedding model preloaded", "url", e.config.URL)
	return nil
}

// Dimensions returns the embedding dimension.
func (e *ServiceEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the model identifier.
func (e *ServiceEmbedder) ModelName() string {
	if e.config.Model != "" {
		return e.config.Model
	}
	return "all-MiniLM-L6-v2"
}

// Close releases HTTP resources.
func (e *ServiceEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if t, ok := e.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}
