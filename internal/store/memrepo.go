package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/smartcart/discovery/internal/catalog"
	"github.com/smartcart/discovery/internal/errors"
)

// MemoryRepository is an in-process Repository for development mode and
// tests. It honors the same ordering and error contracts as the Postgres
// implementation.
type MemoryRepository struct {
	mu sync.RWMutex

	products     map[int64]catalog.Product
	embeddings   map[int64]catalog.Embedding
	sessions     map[string]catalog.Session
	interactions []catalog.Interaction
	weights      map[int64]catalog.RankingWeights
	searchLogs   map[int64]catalog.SearchLog
	explanations map[int64][]catalog.SearchResultExplanation
	metrics      []catalog.EvaluationMetric
	jobs         map[string]catalog.CatalogUploadJob

	nextProductID     int64
	nextInteractionID int64
	nextWeightsID     int64
	nextLogID         int64
	nextExplanationID int64
	nextMetricID      int64

	now func() time.Time
}

// Verify interface implementation at compile time.
var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		products:     make(map[int64]catalog.Product),
		embeddings:   make(map[int64]catalog.Embedding),
		sessions:     make(map[string]catalog.Session),
		weights:      make(map[int64]catalog.RankingWeights),
		searchLogs:   make(map[int64]catalog.SearchLog),
		explanations: make(map[int64][]catalog.SearchResultExplanation),
		jobs:         make(map[string]catalog.CatalogUploadJob),
		now:          time.Now,
	}
}

// SetClock overrides the repository clock. Tests use this to make recency
// deterministic.
func (r *MemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

func (r *MemoryRepository) CreateProduct(ctx context.Context, p *catalog.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p.SKU != "" {
		for _, existing := range r.products {
			if existing.SKU == p.SKU {
				return errors.New(errors.ErrCodeDuplicateSKU,
					fmt.Sprintf("sku %q already exists", p.SKU), nil)
			}
		}
	}

	r.nextProductID++
	p.ID = r.nextProductID
	p.CreatedAt = r.now()
	p.UpdatedAt = p.CreatedAt
	r.products[p.ID] = *p
	return nil
}

func (r *MemoryRepository) UpdateProduct(ctx context.Context, p *catalog.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[p.ID]; !ok {
		return errors.NotFound(errors.ErrCodeProductNotFound, "product", p.ID)
	}
	p.UpdatedAt = r.now()
	r.products[p.ID] = *p

	// A vector embedded from different descriptive text is stale; drop it so
	// the next embedding pass recreates it.
	if e, ok := r.embeddings[p.ID]; ok && e.SourceText != catalog.TruncateText(p.SearchText()) {
		delete(r.embeddings, p.ID)
	}
	return nil
}

func (r *MemoryRepository) DeleteProduct(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return errors.NotFound(errors.ErrCodeProductNotFound, "product", id)
	}
	delete(r.products, id)
	delete(r.embeddings, id)
	return nil
}

func (r *MemoryRepository) GetProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, errors.NotFound(errors.ErrCodeProductNotFound, "product", id)
	}
	return &p, nil
}

func (r *MemoryRepository) allProducts() []catalog.Product {
	out := make([]catalog.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	return out
}

func (r *MemoryRepository) RecentProducts(ctx context.Context, limit int) ([]catalog.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.allProducts()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return truncateProducts(out, limit), nil
}

func (r *MemoryRepository) FeaturedProducts(ctx context.Context, limit int) ([]catalog.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]catalog.Product, 0)
	for _, p := range r.products {
		if p.Featured {
			out = append(out, p)
		}
	}
	sortByRating(out)
	return truncateProducts(out, limit), nil
}

func (r *MemoryRepository) ProductsByCategory(ctx context.Context, category string, limit int) ([]catalog.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]catalog.Product, 0)
	for _, p := range r.products {
		if strings.EqualFold(p.Category, category) {
			out = append(out, p)
		}
	}
	sortByRating(out)
	return truncateProducts(out, limit), nil
}

func (r *MemoryRepository) KeywordSearch(ctx context.Context, query string, limit int) ([]catalog.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(query)
	out := make([]catalog.Product, 0)
	for _, p := range r.products {
		if strings.Contains(strings.ToLower(p.SearchText()), needle) {
			out = append(out, p)
		}
	}
	sortByRating(out)
	return truncateProducts(out, limit), nil
}

func (r *MemoryRepository) ProductsMissingEmbedding(ctx context.Context, limit int) ([]catalog.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]catalog.Product, 0)
	for id, p := range r.products {
		if _, ok := r.embeddings[id]; !ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return truncateProducts(out, limit), nil
}

func (r *MemoryRepository) UpsertEmbedding(ctx context.Context, e *catalog.Embedding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *e
	stored.SourceText = catalog.TruncateText(e.SourceText)
	stored.Vector = append([]float32(nil), e.Vector...)
	if existing, ok := r.embeddings[e.ProductID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = r.now()
	}
	stored.UpdatedAt = r.now()
	r.embeddings[e.ProductID] = stored
	return nil
}

func (r *MemoryRepository) DeleteEmbedding(ctx context.Context, productID int64) error {
	r.mu.Lock()
	delete(r.embeddings, productID)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) GetEmbedding(ctx context.Context, productID int64) (*catalog.Embedding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.embeddings[productID]
	if !ok {
		return nil, errors.NotFound(errors.ErrCodeProductNotFound, "embedding for product", productID)
	}
	return &e, nil
}

func (r *MemoryRepository) AllEmbeddings(ctx context.Context) ([]catalog.Embedding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]catalog.Embedding, 0, len(r.embeddings))
	for _, e := range r.embeddings {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (r *MemoryRepository) TouchSession(ctx context.Context, id string, now time.Time) (*catalog.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		s = catalog.Session{
			ID:           id,
			CreatedAt:    now,
			LastActiveAt: now,
			ExpiresAt:    now.Add(catalog.SessionTTL),
		}
	} else {
		s.LastActiveAt = now
	}
	r.sessions[id] = s
	return &s, nil
}

func (r *MemoryRepository) GetSession(ctx context.Context, id string) (*catalog.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeRecordNotFound,
			fmt.Sprintf("session %s not found", id), nil)
	}
	return &s, nil
}

func (r *MemoryRepository) AddInteraction(ctx context.Context, i *catalog.Interaction) error {
	if err := i.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[i.ProductID]; !ok {
		return errors.NotFound(errors.ErrCodeProductNotFound, "product", i.ProductID)
	}

	r.nextInteractionID++
	i.ID = r.nextInteractionID
	i.CreatedAt = r.now()
	r.interactions = append(r.interactions, *i)
	return nil
}

func (r *MemoryRepository) RecentInteractions(ctx context.Context, sessionID string, limit int) ([]catalog.Interaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]catalog.Interaction, 0)
	for _, i := range r.interactions {
		if i.SessionID == sessionID {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ActiveWeights(ctx context.Context) (*catalog.RankingWeights, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.weights {
		if w.Active {
			return &w, nil
		}
	}

	def := catalog.DefaultWeights()
	r.nextWeightsID++
	def.ID = r.nextWeightsID
	def.CreatedAt = r.now()
	def.UpdatedAt = def.CreatedAt
	r.weights[def.ID] = def
	return &def, nil
}

func (r *MemoryRepository) UpdateWeights(ctx context.Context, w *catalog.RankingWeights) error {
	if err := w.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if w.Active {
		for id, existing := range r.weights {
			existing.Active = false
			r.weights[id] = existing
		}
	}
	if w.ID == 0 {
		r.nextWeightsID++
		w.ID = r.nextWeightsID
		w.CreatedAt = r.now()
	} else if _, ok := r.weights[w.ID]; !ok {
		return errors.NotFound(errors.ErrCodeRecordNotFound, "weights", w.ID)
	}
	w.UpdatedAt = r.now()
	r.weights[w.ID] = *w
	return nil
}

func (r *MemoryRepository) SaveSearchLog(ctx context.Context, log *catalog.SearchLog, explanations []catalog.SearchResultExplanation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextLogID++
	log.ID = r.nextLogID
	log.CreatedAt = r.now()
	r.searchLogs[log.ID] = *log

	stored := make([]catalog.SearchResultExplanation, len(explanations))
	for i := range explanations {
		r.nextExplanationID++
		explanations[i].ID = r.nextExplanationID
		explanations[i].SearchLogID = log.ID
		explanations[i].CreatedAt = log.CreatedAt
		stored[i] = explanations[i]
	}
	r.explanations[log.ID] = stored
	return nil
}

func (r *MemoryRepository) GetSearchLog(ctx context.Context, id int64) (*catalog.SearchLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log, ok := r.searchLogs[id]
	if !ok {
		return nil, errors.NotFound(errors.ErrCodeSearchLogMissing, "search log", id)
	}
	return &log, nil
}

func (r *MemoryRepository) LatestSearchLog(ctx context.Context, sessionID, query string) (*catalog.SearchLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *catalog.SearchLog
	for id := range r.searchLogs {
		log := r.searchLogs[id]
		if log.SessionID != sessionID || log.Query != query {
			continue
		}
		if best == nil || log.CreatedAt.After(best.CreatedAt) ||
			(log.CreatedAt.Equal(best.CreatedAt) && log.ID > best.ID) {
			copied := log
			best = &copied
		}
	}
	if best == nil {
		return nil, errors.New(errors.ErrCodeSearchLogMissing,
			fmt.Sprintf("no search log for session %s", sessionID), nil)
	}
	return best, nil
}

func (r *MemoryRepository) ListSearchLogs(ctx context.Context, limit int) ([]catalog.SearchLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]catalog.SearchLog, 0, len(r.searchLogs))
	for _, log := range r.searchLogs {
		out = append(out, log)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ExplanationsForLog(ctx context.Context, searchLogID int64) ([]catalog.SearchResultExplanation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := append([]catalog.SearchResultExplanation(nil), r.explanations[searchLogID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *MemoryRepository) MarkExplanationClicked(ctx context.Context, searchLogID, productID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.explanations[searchLogID] {
		if r.explanations[searchLogID][i].ProductID == productID {
			r.explanations[searchLogID][i].WasClicked = true
		}
	}
	return nil
}

func (r *MemoryRepository) SaveMetric(ctx context.Context, m *catalog.EvaluationMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextMetricID++
	m.ID = r.nextMetricID
	m.CreatedAt = r.now()
	r.metrics = append(r.metrics, *m)
	return nil
}

func (r *MemoryRepository) ListMetrics(ctx context.Context, limit int) ([]catalog.EvaluationMetric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := append([]catalog.EvaluationMetric(nil), r.metrics...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) CreateUploadJob(ctx context.Context, j *catalog.CatalogUploadJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = *j
	return nil
}

func (r *MemoryRepository) UpdateUploadJob(ctx context.Context, j *catalog.CatalogUploadJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[j.ID]; !ok {
		return errors.New(errors.ErrCodeRecordNotFound,
			fmt.Sprintf("upload job %s not found", j.ID), nil)
	}
	r.jobs[j.ID] = *j
	return nil
}

func (r *MemoryRepository) GetUploadJob(ctx context.Context, id string) (*catalog.CatalogUploadJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeRecordNotFound,
			fmt.Sprintf("upload job %s not found", id), nil)
	}
	return &j, nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }
func (r *MemoryRepository) Close() error                   { return nil }

func truncateProducts(out []catalog.Product, limit int) []catalog.Product {
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortByRating(out []catalog.Product) {
	sort.Slice(out, func(i, j int) bool {
		ri, rj := -1.0, -1.0
		if out[i].Rating != nil {
			ri = *out[i].Rating
		}
		if out[j].Rating != nil {
			rj = *out[j].Rating
		}
		if ri != rj {
			return ri > rj
		}
		return out[i].ID < out[j].ID
	})
}
