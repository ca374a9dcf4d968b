package cmd

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/smartcart/discovery/internal/cache"
	"github.com/smartcart/discovery/internal/config"
	"github.com/smartcart/discovery/internal/embed"
	"github.com/smartcart/discovery/internal/jobs"
	"github.com/smartcart/discovery/internal/rank"
	"github.com/smartcart/discovery/internal/recommend"
	"github.com/smartcart/discovery/internal/search"
	"github.com/smartcart/discovery/internal/session"
	"github.com/smartcart/discovery/internal/store"
	"github.com/smartcart/discovery/internal/telemetry"
)

// app holds the wired engine for one command invocation.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	repo     store.Repository
	index    store.VectorIndex
	embedder embed.Embedder
	metrics  *telemetry.Metrics

	orchestrator *search.Orchestrator
	tracker      *session.Tracker
	recommender  *recommend.Recommender
	trending     *cache.TrendingCache
	weights      *cache.WeightsCache
	runner       *jobs.Runner

	closers []func()
}

// newApp loads the configuration and wires every component. Commands that
// only read version info never call this, so a broken database does not
// block diagnostics.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: slog.Default()}

	if err := a.openRepository(ctx); err != nil {
		return nil, err
	}
	if err := a.openEmbedder(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildIndex(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.metrics = telemetry.NewMetrics(prometheus.NewRegistry())
	a.weights = cache.NewWeightsCache(a.repo)
	a.tracker = session.NewTracker(a.repo, a.logger)
	a.recommender = recommend.NewRecommender(a.repo, a.index, a.logger)
	a.trending = cache.NewTrendingCache(a.redisClient(), a.recommender, a.logger)

	fallback := embed.NewDeterministicEmbedder(cfg.Embedding.Dimensions)
	a.orchestrator = search.NewOrchestrator(search.Config{
		Repo:     a.repo,
		Index:    a.index,
		Embedder: a.embedder,
		Fallback: fallback,
		Ranker:   rank.NewRanker(fallback, a.logger),
		Weights:  a.weights,
		Tracker:  a.tracker,
		Metrics:  a.metrics,
		Logger:   a.logger,
	})

	a.runner = jobs.NewRunner(jobs.RunnerConfig{
		Repo:      a.repo,
		Index:     a.index,
		Embedder:  a.embedder,
		Metrics:   a.metrics,
		Logger:    a.logger,
		BatchSize: cfg.Embedding.BatchSize,
	})

	return a, nil
}

// Close releases connections in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	return config.LoadOrDefault(config.DefaultPath())
}

// openRepository connects to Postgres and migrates the schema, or falls back
// to the in-memory repository when no DATABASE_URL is configured.
func (a *app) openRepository(ctx context.Context) error {
	if a.cfg.Database.URL == "" {
		a.logger.Warn("DATABASE_URL not set, using in-memory repository; data will not persist")
		a.repo = store.NewMemoryRepository()
		return nil
	}

	pg, err := store.NewPostgresRepository(ctx, a.cfg.Database.URL, store.PostgresConfig{
		MaxConnections:  a.cfg.Database.MaxConnections,
		IdleConnections: a.cfg.Database.IdleConnections,
		MaxLifetime:     a.cfg.Database.MaxLifetimeDuration(),
	})
	if err != nil {
		return err
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return err
	}

	a.repo = pg
	a.closers = append(a.closers, func() { _ = pg.Close() })
	return nil
}

func (a *app) openEmbedder(ctx context.Context) error {
	provider := embed.ProviderService
	if a.cfg.Embedding.Provider == "deterministic" {
		provider = embed.ProviderDeterministic
	}

	embedder, err := embed.NewEmbedder(ctx, provider, embed.ServiceConfig{
		URL:         a.cfg.Embedding.ServiceURL,
		Model:       a.cfg.Embedding.Model,
		Dimensions:  a.cfg.Embedding.Dimensions,
		WarmTimeout: a.cfg.Embedding.WarmTimeoutDuration(),
		ColdTimeout: a.cfg.Embedding.ColdTimeoutDuration(),
		MaxRetries:  a.cfg.Embedding.MaxRetries,
		BatchSize:   a.cfg.Embedding.BatchSize,
	})
	if err != nil {
		return err
	}

	a.embedder = embedder
	a.closers = append(a.closers, func() { _ = embedder.Close() })
	return nil
}

// buildIndex creates the vector index and warms it from stored embeddings.
func (a *app) buildIndex(ctx context.Context) error {
	dims := a.cfg.Embedding.Dimensions
	switch a.cfg.Search.IndexBackend {
	case "hnsw":
		a.index = store.NewHNSWIndex(dims)
	default:
		a.index = store.NewMemoryIndex(dims)
	}

	embeddings, err := a.repo.AllEmbeddings(ctx)
	if err != nil {
		return err
	}

	_, skipped := store.Warm(ctx, a.index, embeddings)
	if skipped > 0 {
		a.logger.Warn("index warmup skipped corrupt embeddings",
			"loaded", a.index.Len(), "skipped", skipped)
	}
	a.logger.Info("vector index ready",
		"backend", a.cfg.Search.IndexBackend, "size", a.index.Len())
	return nil
}

func (a *app) redisClient() *redis.Client {
	if a.cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.closers = append(a.closers, func() { _ = client.Close() })
	return client
}
