// Package jobs runs catalog upload jobs: product ingestion followed by batch
// embedding. Job state is persisted after every transition so an interrupted
// run can be diagnosed and re-driven.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/smartcart/discovery/internal/catalog"
	"github.com/smartcart/discovery/internal/embed"
	"github.com/smartcart/discovery/internal/errors"
	"github.com/smartcart/discovery/internal/store"
	"github.com/smartcart/discovery/internal/telemetry"
)

const (
	// DefaultWorkers bounds concurrent embedding batches.
	DefaultWorkers = 4
)

// Runner executes catalog upload jobs.
type Runner struct {
	repo     store.Repository
	index    store.VectorIndex
	embedder embed.Embedder
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	batchSize int
	workers   int
	now       func() time.Time
}

// RunnerConfig assembles a Runner.
type RunnerConfig struct {
	Repo      store.Repository
	Index     store.VectorIndex
	Embedder  embed.Embedder
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
	BatchSize int
	Workers   int
}

// NewRunner creates a job runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NewNopMetrics()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = embed.DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Runner{
		repo:      cfg.Repo,
		index:     cfg.Index,
		embedder:  cfg.Embedder,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		batchSize: cfg.BatchSize,
		workers:   cfg.Workers,
		now:       time.Now,
	}
}

// Run ingests the given products under a fresh job and embeds them. The
// returned job carries final counters; its status explains any failure.
func (r *Runner) Run(ctx context.Context, filename string, products []catalog.Product) (*catalog.CatalogUploadJob, error) {
	job := &catalog.CatalogUploadJob{
		ID:        uuid.NewString(),
		Filename:  filename,
		Status:    catalog.JobPending,
		Total:     len(products),
		StartedAt: r.now(),
	}
	if err := r.repo.CreateUploadJob(ctx, job); err != nil {
		return nil, err
	}

	if err := r.ingest(ctx, job, products); err != nil {
		return r.fail(ctx, job, err), err
	}
	if err := r.EmbedMissing(ctx, job); err != nil {
		return r.fail(ctx, job, err), err
	}

	job.Status = catalog.JobCompleted
	completed := r.now()
	job.CompletedAt = &completed
	if err := r.repo.UpdateUploadJob(ctx, job); err != nil {
		return nil, err
	}
	r.metrics.UploadJobs.WithLabelValues(string(catalog.JobCompleted)).Inc()
	r.logger.Info("catalog upload completed",
		"job_id", job.ID, "total", job.Total,
		"processed", job.Processed, "embedded", job.Embedded)
	return job, nil
}

// ingest inserts products one by one. Individual invalid rows are skipped
// and logged; a repository failure aborts the job.
func (r *Runner) ingest(ctx context.Context, job *catalog.CatalogUploadJob, products []catalog.Product) error {
	job.Status = catalog.JobProcessing
	if err := r.repo.UpdateUploadJob(ctx, job); err != nil {
		return err
	}

	for i := range products {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := &products[i]
		if err := r.repo.CreateProduct(ctx, p); err != nil {
			if errors.IsRetryable(err) {
				return err
			}
			r.logger.Warn("skipping product on upload",
				"job_id", job.ID, "title", p.Title, "error", err)
			continue
		}
		job.Processed++
	}
	return r.repo.UpdateUploadJob(ctx, job)
}

// EmbedMissing embeds every product without a stored vector, in parallel
// batches. It is resumable: re-running after a crash picks up only the
// products still missing embeddings.
func (r *Runner) EmbedMissing(ctx context.Context, job *catalog.CatalogUploadJob) error {
	job.Status = catalog.JobEmbedding
	if err := r.repo.UpdateUploadJob(ctx, job); err != nil {
		return err
	}

	// Page through products still missing a vector; each pass shrinks the
	// set, so an interrupted job resumes where it stopped.
	for {
		missing, err := r.repo.ProductsMissingEmbedding(ctx, r.batchSize*r.workers)
		if err != nil {
			return err
		}
		if len(missing) == 0 {
			return nil
		}

		var embedded atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.workers)

		for start := 0; start < len(missing); start += r.batchSize {
			end := start + r.batchSize
			if end > len(missing) {
				end = len(missing)
			}
			batch := missing[start:end]

			g.Go(func() error {
				n, err := r.embedBatch(gctx, batch)
				embedded.Add(int64(n))
				return err
			})
		}
		err = g.Wait()

		job.Embedded += int(embedded.Load())
		if updateErr := r.repo.UpdateUploadJob(ctx, job); updateErr != nil && err == nil {
			err = updateErr
		}
		if err != nil {
			return err
		}

		// Products skipped after retries would spin this loop forever; stop
		// once a full pass stores nothing.
		if embedded.Load() == 0 {
			return nil
		}
	}
}

// Regenerate re-embeds one product from its current descriptive text,
// replacing whatever vector is stored.
func (r *Runner) Regenerate(ctx context.Context, productID int64) error {
	p, err := r.repo.GetProduct(ctx, productID)
	if err != nil {
		return err
	}

	text := catalog.TruncateText(p.SearchText())
	var vec []float32
	err = embed.WithRetry(ctx, embed.DefaultRetryConfig(), func() error {
		var embedErr error
		vec, embedErr = r.embedder.Embed(ctx, text)
		return embedErr
	})
	if err != nil {
		r.metrics.EmbedRequests.WithLabelValues(r.embedder.ModelName(), "failed").Inc()
		return err
	}
	return r.store(ctx, p, text, vec)
}

// RegenerateAll drops every stored vector and re-embeds the catalog under a
// fresh job, for model upgrades or embedder changes.
func (r *Runner) RegenerateAll(ctx context.Context) (*catalog.CatalogUploadJob, error) {
	embeddings, err := r.repo.AllEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	for i := range embeddings {
		id := embeddings[i].ProductID
		if err := r.repo.DeleteEmbedding(ctx, id); err != nil {
			return nil, err
		}
		if err := r.index.Remove(ctx, id); err != nil {
			return nil, err
		}
	}

	job := &catalog.CatalogUploadJob{
		ID:        uuid.NewString(),
		Filename:  "regenerate-all",
		Status:    catalog.JobPending,
		StartedAt: r.now(),
	}
	if err := r.repo.CreateUploadJob(ctx, job); err != nil {
		return nil, err
	}
	if err := r.EmbedMissing(ctx, job); err != nil {
		return r.fail(ctx, job, err), err
	}

	job.Total = job.Embedded
	job.Processed = job.Embedded
	job.Status = catalog.JobCompleted
	completed := r.now()
	job.CompletedAt = &completed
	if err := r.repo.UpdateUploadJob(ctx, job); err != nil {
		return nil, err
	}
	r.metrics.UploadJobs.WithLabelValues(string(catalog.JobCompleted)).Inc()
	r.logger.Info("embedding regeneration completed",
		"job_id", job.ID, "embedded", job.Embedded)
	return job, nil
}

// embedBatch embeds one batch, falling back to per-product retries when the
// bulk call fails so one poison text cannot sink its batchmates.
func (r *Runner) embedBatch(ctx context.Context, batch []catalog.Product) (int, error) {
	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = catalog.TruncateText(batch[i].SearchText())
	}

	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		r.logger.Warn("batch embedding failed, retrying per product", "size", len(batch), "error", err)
		return r.embedIndividually(ctx, batch, texts)
	}

	var stored int
	for i := range batch {
		if err := r.store(ctx, &batch[i], texts[i], vectors[i]); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

func (r *Runner) embedIndividually(ctx context.Context, batch []catalog.Product, texts []string) (int, error) {
	var stored int
	for i := range batch {
		var vec []float32
		err := embed.WithRetry(ctx, embed.DefaultRetryConfig(), func() error {
			var embedErr error
			vec, embedErr = r.embedder.Embed(ctx, texts[i])
			return embedErr
		})
		if err != nil {
			r.logger.Warn("skipping product after retries",
				"product_id", batch[i].ID, "error", err)
			r.metrics.EmbedRequests.WithLabelValues(r.embedder.ModelName(), "failed").Inc()
			continue
		}
		if err := r.store(ctx, &batch[i], texts[i], vec); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

// store persists one embedding and mirrors it into the vector index.
func (r *Runner) store(ctx context.Context, p *catalog.Product, sourceText string, vec []float32) error {
	e := &catalog.Embedding{
		ProductID:  p.ID,
		Vector:     vec,
		SourceText: sourceText,
		Model:      r.embedder.ModelName(),
	}
	if err := r.repo.UpsertEmbedding(ctx, e); err != nil {
		return err
	}
	if err := r.index.Upsert(ctx, p.ID, vec); err != nil {
		return fmt.Errorf("index embedding for product %d: %w", p.ID, err)
	}
	r.metrics.IndexSize.Set(float64(r.index.Len()))
	r.metrics.EmbedRequests.WithLabelValues(r.embedder.ModelName(), "ok").Inc()
	return nil
}

// fail stamps the job failed with the triggering error.
func (r *Runner) fail(ctx context.Context, job *catalog.CatalogUploadJob, cause error) *catalog.CatalogUploadJob {
	job.Status = catalog.JobFailed
	job.ErrorMsg = cause.Error()
	completed := r.now()
	job.CompletedAt = &completed
	if err := r.repo.UpdateUploadJob(ctx, job); err != nil {
		r.logger.Error("failed to record job failure", "job_id", job.ID, "error", err)
	}
	r.metrics.UploadJobs.WithLabelValues(string(catalog.JobFailed)).Inc()
	return job
}
