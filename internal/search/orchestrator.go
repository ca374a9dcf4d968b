// Package search orchestrates a query end to end: session resolution,
// query embedding with degraded fallback, candidate assembly, ranking,
// transactional logging, and the keyword fallback for queries the semantic
// path cannot answer.
package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/smartcart/discovery/internal/cache"
	"github.com/smartcart/discovery/internal/catalog"
	"github.com/smartcart/discovery/internal/embed"
	"github.com/smartcart/discovery/internal/errors"
	"github.com/smartcart/discovery/internal/rank"
	"github.com/smartcart/discovery/internal/session"
	"github.com/smartcart/discovery/internal/store"
	"github.com/smartcart/discovery/internal/telemetry"
)

const (
	// DefaultLimit is the result count when the caller does not specify one.
	DefaultLimit = 10
	// CandidateLimit bounds the candidate set fetched per query.
	CandidateLimit = 5000
	// EmbedBudget is the soft deadline for the network embed call; past it
	// the search degrades to the deterministic embedder rather than failing.
	EmbedBudget = 500 * time.Millisecond
	// HardDeadline aborts a search outright.
	HardDeadline = 1500 * time.Millisecond

	// FallbackKeyword flags a response served by the keyword path.
	FallbackKeyword = "keyword"
)

// Request is one search invocation.
type Request struct {
	SessionID string
	Query     string
	Filters   catalog.FilterBag
	Limit     int
}

// Response carries the ranked results and the flags a client needs to
// interpret them.
type Response struct {
	SessionID      string        `json:"session_id"`
	Results        []rank.Result `json:"results"`
	Degraded       bool          `json:"degraded"`
	Fallback       string        `json:"fallback,omitempty"`
	SearchLogID    int64         `json:"search_log_id,omitempty"`
	ResponseTimeMs int64         `json:"response_time_ms"`
}

// Orchestrator wires the engine's components into the search sequence.
type Orchestrator struct {
	repo     store.Repository
	index    store.VectorIndex
	embedder embed.Embedder
	fallback embed.Embedder
	ranker   *rank.Ranker
	weights  *cache.WeightsCache
	tracker  *session.Tracker
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Config assembles an orchestrator's dependencies.
type Config struct {
	Repo     store.Repository
	Index    store.VectorIndex
	Embedder embed.Embedder
	Fallback embed.Embedder
	Ranker   *rank.Ranker
	Weights  *cache.WeightsCache
	Tracker  *session.Tracker
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// NewOrchestrator creates the search orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NewNopMetrics()
	}
	if cfg.Fallback == nil {
		cfg.Fallback = embed.NewDeterministicEmbedder(embed.DefaultDimensions)
	}
	return &Orchestrator{
		repo:     cfg.Repo,
		index:    cfg.Index,
		embedder: cfg.Embedder,
		fallback: cfg.Fallback,
		ranker:   cfg.Ranker,
		weights:  cfg.Weights,
		tracker:  cfg.Tracker,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Search runs the full sequence for one query. A cancelled search returns
// the cancellation and writes no log.
func (o *Orchestrator) Search(ctx context.Context, req Request) (*Response, error) {
	started := o.now()

	if err := catalog.ValidateQuery(req.Query); err != nil {
		return nil, err
	}
	if err := req.Filters.Validate(); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if err := catalog.ValidateLimit(limit, catalog.MaxSearchLimit); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, HardDeadline)
	defer cancel()

	sess, err := o.tracker.Touch(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	queryVec, degraded, err := o.embedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	if degraded {
		o.metrics.DegradedSearches.Inc()
	}

	candidates, err := o.assembleCandidates(ctx, &req.Filters)
	if err != nil {
		return nil, err
	}

	weights, err := o.weights.Active(ctx)
	if err != nil {
		return nil, err
	}

	results, err := o.ranker.Rank(ctx, req.Query, queryVec, candidates, weights, rank.Options{
		MinScore: req.Filters.MinScore,
		Limit:    limit,
		Now:      started,
	})
	if err != nil {
		if ctxErr := errors.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	resp := &Response{
		SessionID: sess.ID,
		Results:   results,
		Degraded:  degraded,
	}

	if len(results) == 0 && len(rank.QueryTerms(req.Query)) > 0 {
		resp.Results, err = o.keywordFallback(ctx, req.Query, limit, started)
		if err != nil {
			return nil, err
		}
		resp.Fallback = FallbackKeyword
		o.metrics.KeywordFallbacks.Inc()
		o.logger.Info("keyword fallback served",
			"query", req.Query, "results", len(resp.Results), "session_id", sess.ID)
	}

	// A cancelled search must not leave a log row behind.
	if ctxErr := errors.FromContext(ctx); ctxErr != nil {
		return nil, ctxErr
	}

	resp.ResponseTimeMs = o.now().Sub(started).Milliseconds()
	if len(resp.Results) > 0 || resp.Fallback != "" {
		if err := o.persistLog(ctx, sess.ID, req, queryVec, resp); err != nil {
			return nil, err
		}
	}

	outcome := "ok"
	if resp.Fallback != "" {
		outcome = "fallback"
	}
	path := "semantic"
	if resp.Fallback == FallbackKeyword {
		path = "keyword"
	}
	o.metrics.ObserveSearch(path, outcome, o.now().Sub(started))

	o.logger.Info("search completed",
		"query", req.Query,
		"results", len(resp.Results),
		"degraded", resp.Degraded,
		"fallback", resp.Fallback,
		"response_time_ms", resp.ResponseTimeMs,
		"search_log_id", resp.SearchLogID)
	return resp, nil
}

// embedQuery requests the query vector within the soft budget, degrading to
// the deterministic embedder on timeout or backend failure. Caller
// cancellation propagates instead of degrading.
func (o *Orchestrator) embedQuery(ctx context.Context, query string) ([]float32, bool, error) {
	embedCtx, cancel := context.WithTimeout(ctx, EmbedBudget)
	defer cancel()

	vec, err := o.embedder.Embed(embedCtx, query)
	if err == nil {
		return vec, false, nil
	}
	if ctxErr := errors.FromContext(ctx); ctxErr != nil {
		return nil, false, ctxErr
	}

	o.logger.Warn("query embedding degraded to deterministic fallback", "error", err)
	vec, err = o.fallback.Embed(ctx, query)
	if err != nil {
		return nil, false, errors.New(errors.ErrCodeEmbeddingFailed,
			"both embedding paths failed", err)
	}
	return vec, true, nil
}

// assembleCandidates fetches the bounded candidate set with vectors and
// applies the request filters.
func (o *Orchestrator) assembleCandidates(ctx context.Context, filters *catalog.FilterBag) ([]rank.Candidate, error) {
	products, err := o.repo.RecentProducts(ctx, CandidateLimit)
	if err != nil {
		return nil, err
	}

	scanFilter := &store.ScanFilter{
		Category:    filters.Category,
		MinPrice:    filters.MinPrice,
		MaxPrice:    filters.MaxPrice,
		InStockOnly: filters.InStockOnly,
	}

	candidates := make([]rank.Candidate, 0, len(products))
	for i := range products {
		p := &products[i]
		if !scanFilter.Matches(p) {
			continue
		}
		c := rank.Candidate{Product: *p}
		if vec, ok := o.index.Lookup(ctx, p.ID); ok {
			c.Vector = vec
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// keywordFallback serves substring matches with a flat score when the
// semantic path returns nothing.
func (o *Orchestrator) keywordFallback(ctx context.Context, query string, limit int, now time.Time) ([]rank.Result, error) {
	products, err := o.repo.KeywordSearch(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	terms := rank.QueryTerms(query)
	results := make([]rank.Result, len(products))
	for i := range products {
		p := products[i]
		matched := rank.MatchedTerms(terms, &p)
		sub := rank.SubScores{
			Semantic: 0.5,
			Rating:   rank.RatingScore(&p),
			Price:    0.5,
			Stock:    fallbackStockScore(&p),
			Recency:  0.5,
		}
		results[i] = rank.Result{
			Product:      p,
			FinalScore:   0.5,
			SubScores:    sub,
			MatchedTerms: catalog.StringList(matched),
			Explanation:  rank.Explain(&p, sub, matched),
			Rank:         i + 1,
		}
	}
	return results, nil
}

// fallbackStockScore is the coarse availability score used on the keyword
// path, which skips inventory-depth shading.
func fallbackStockScore(p *catalog.Product) float64 {
	switch p.Availability {
	case catalog.AvailabilityInStock:
		return 1
	case catalog.AvailabilityLowStock:
		return 0.5
	default:
		return 0
	}
}

// persistLog writes the search log and its explanations in one transaction.
func (o *Orchestrator) persistLog(ctx context.Context, sessionID string, req Request, queryVec []float32, resp *Response) error {
	log := &catalog.SearchLog{
		SessionID:      sessionID,
		Query:          req.Query,
		QueryEmbedding: queryVec,
		ResultCount:    len(resp.Results),
		ResponseTimeMs: resp.ResponseTimeMs,
		Filters:        req.Filters,
	}

	explanations := make([]catalog.SearchResultExplanation, len(resp.Results))
	for i, r := range resp.Results {
		explanations[i] = catalog.SearchResultExplanation{
			ProductID:     r.Product.ID,
			Position:      r.Rank,
			FinalScore:    r.FinalScore,
			SemanticScore: r.SubScores.Semantic,
			RatingScore:   r.SubScores.Rating,
			PriceScore:    r.SubScores.Price,
			StockScore:    r.SubScores.Stock,
			RecencyScore:  r.SubScores.Recency,
			MatchedTerms:  r.MatchedTerms,
			Explanation:   r.Explanation,
		}
	}

	if err := o.repo.SaveSearchLog(ctx, log, explanations); err != nil {
		return err
	}
	resp.SearchLogID = log.ID
	return nil
}
