package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcart/discovery/internal/errors"
)

// fakeService returns a test server imitating the sentence-embedding service.
func fakeService(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/embed", func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		vec := make([]float32, dims)
		vec[0] = 1
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: vec, Dimension: dims})
	})
	mux.HandleFunc("/embed/batch", func(w http.ResponseWriter, r *http.Request) {
		var req batchEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		out := make([][]float32, len(req.Texts))
		for i := range out {
			out[i] = make([]float32, dims)
			out[i][i%dims] = 1
		}
		_ = json.NewEncoder(w).Encode(batchEmbedResponse{
			Embeddings: out, Dimension: dims, Count: len(out),
		})
	})
	return httptest.NewServer(mux)
}

func TestServiceEmbedder_Embed(t *testing.T) {
	srv := fakeService(t, 8)
	defer srv.Close()

	e := NewServiceEmbedder(ServiceConfig{URL: srv.URL, Dimensions: 8})
	defer e.Close()

	v, err := e.Embed(context.Background(), "wireless headphones")
	require.NoError(t, err)
	assert.Len(t, v, 8)
	assert.InDelta(t, 1.0, vectorNorm(v), 1e-6)
	assert.True(t, e.Available(context.Background()))
}

func TestServiceEmbedder_EmbedBatch_Chunks(t *testing.T) {
	srv := fakeService(t, 8)
	defer srv.Close()

	e := NewServiceEmbedder(ServiceConfig{URL: srv.URL, Dimensions: 8, BatchSize: 2})
	defer e.Close()

	texts := []string{"a", "b", "c", "d", "e"}
	vs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vs, len(texts))
}

func TestServiceEmbedder_DimensionMismatch(t *testing.T) {
	srv := fakeService(t, 4)
	defer srv.Close()

	e := NewServiceEmbedder(ServiceConfig{URL: srv.URL, Dimensions: 8})
	defer e.Close()

	_, err := e.Embed(context.Background(), "anything")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDimensionInvalid, errors.CodeOf(err))
}

func TestServiceEmbedder_TimeoutIsTyped(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer slow.Close()

	e := NewServiceEmbedder(ServiceConfig{
		URL:         slow.URL,
		Dimensions:  8,
		WarmTimeout: 50 * time.Millisecond,
		ColdTimeout: 50 * time.Millisecond,
		MaxRetries:  1,
	})
	defer e.Close()

	_, err := e.Embed(context.Background(), "anything")
	require.Error(t, err)
	assert.Equal(t, errors.KindTimeout, errors.KindOf(err))
}

func TestServiceEmbedder_UnreachableIsTyped(t *testing.T) {
	e := NewServiceEmbedder(ServiceConfig{
		URL:        "http://127.0.0.1:1", // nothing listens here
		Dimensions: 8,
		MaxRetries: 1,
	})
	defer e.Close()

	_, err := e.Embed(context.Background(), "anything")
	require.Error(t, err)
	assert.Equal(t, errors.KindUnavailable, errors.KindOf(err))
	assert.False(t, e.Available(context.Background()))
}

func TestServiceEmbedder_CancelledContext(t *testing.T) {
	srv := fakeService(t, 8)
	defer srv.Close()

	e := NewServiceEmbedder(ServiceConfig{URL: srv.URL, Dimensions: 8})
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Embed(ctx, "anything")
	require.Error(t, err)
	assert.Equal(t, errors.KindCancelled, errors.KindOf(err))
}

func TestServiceEmbedder_ColdThenWarmTimeout(t *testing.T) {
	e := NewServiceEmbedder(ServiceConfig{
		Dimensions:  8,
		WarmTimeout: 2 * time.Second,
		ColdTimeout: 60 * time.Second,
	})
	defer e.Close()

	// No call yet: cold budget applies.
	assert.Equal(t, 60*time.Second, e.requestTimeout())

	e.markCalled()
	assert.Equal(t, 2*time.Second, e.requestTimeout())
}
