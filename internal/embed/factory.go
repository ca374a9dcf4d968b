package embed

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// ProviderType selects an embedding provider.
type ProviderType string

const (
	// ProviderService uses the network sentence-embedding service (default).
	ProviderService ProviderType = "service"

	// ProviderDeterministic uses the pure-function fallback embedder.
	ProviderDeterministic ProviderType = "deterministic"
)

// NewEmbedder creates an embedder for the given provider. The
// SMARTCART_EMBEDDER environment variable overrides the provider
// ("service" or "deterministic").
//
// The service provider is returned even when the service is currently
// unreachable: per-request failures degrade to the deterministic fallback at
// the orchestrator, and batch jobs retry later. Query caching is enabled
// unless SMARTCART_EMBED_CACHE=false.
func NewEmbedder(ctx context.Context, provider ProviderType, cfg ServiceConfig) (Embedder, error) {
	if env := strings.ToLower(os.Getenv("SMARTCART_EMBEDDER")); env != "" {
		provider = ProviderType(env)
	}

	var embedder Embedder
	switch provider {
	case ProviderDeterministic:
		embedder = NewDeterministicEmbedder(cfg.Dimensions)
	default:
		svc := NewServiceEmbedder(cfg)
		if !svc.Available(ctx) {
			slog.Warn("embedding service unreachable, requests will degrade to deterministic fallback",
				"url", svc.config.URL)
		}
		embedder = svc
	}

	if !isCacheDisabled() {
		embedder = NewCachedEmbedder(embedder, DefaultEmbeddingCacheSize)
	}

	return embedder, nil
}

// isCacheDisabled checks if embedding cache is disabled via environment.
func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("SMARTCART_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off"
}
