// Package recommend produces session-based product recommendations: affinity
// scoring over recent interactions, nearest-neighbor similar products, and a
// session-independent trending list.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/smartcart/discovery/internal/catalog"
	"github.com/smartcart/discovery/internal/errors"
	"github.com/smartcart/discovery/internal/store"
)

const (
	// InteractionWindow is how many recent events feed the affinity model.
	InteractionWindow = 20
	// AffinityThreshold drops candidates with negligible affinity.
	AffinityThreshold = 0.1
	// SimilarityThreshold drops weak nearest neighbors.
	SimilarityThreshold = 0.3
	// DefaultLimit bounds recommendation lists when the caller passes zero.
	DefaultLimit = 10
)

// interactionWeight is the base signal strength per event kind. A purchase
// says far more about intent than a view.
var interactionWeight = map[catalog.InteractionKind]float64{
	catalog.InteractionPurchase:    5,
	catalog.InteractionAddToCart:   4,
	catalog.InteractionSearchClick: 3,
	catalog.InteractionClick:       2,
	catalog.InteractionView:        1,
}

// Recommendation is one recommended product with its affinity score and the
// human-readable reason it was chosen.
type Recommendation struct {
	Product catalog.Product `json:"product"`
	Score   float64         `json:"score"`
	Reason  string          `json:"reason"`
}

// Recommender scores candidates against a session's interaction history.
// Candidate vectors come from the shared vector index, so the configured
// backend serves recommendations and search alike.
type Recommender struct {
	repo   store.Repository
	index  store.VectorIndex
	logger *slog.Logger
	now    func() time.Time
}

// NewRecommender creates a recommender over the repository and vector index.
func NewRecommender(repo store.Repository, index store.VectorIndex, logger *slog.Logger) *Recommender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recommender{repo: repo, index: index, logger: logger, now: time.Now}
}

// seedProduct is one interacted product with its accumulated weight and the
// strongest interaction kind that touched it.
type seedProduct struct {
	productID int64
	weight    float64
	kind      catalog.InteractionKind
	vector    []float32
}

// ForSession recommends products from the session's recent interactions.
// Products in exclude or already interacted with are never returned. A
// session with no usable history falls through to the featured cold-start
// list.
func (r *Recommender) ForSession(ctx context.Context, sessionID string, limit int, exclude []int64) ([]Recommendation, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	// History behind an unknown or expired session is ignored; those
	// shoppers get the cold-start list like a first-time visitor.
	if sessionID == "" {
		return r.coldStart(ctx, limit, "Popular product")
	}
	s, err := r.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.KindOf(err) != errors.KindNotFound {
			return nil, err
		}
		return r.coldStart(ctx, limit, "Popular product")
	}
	if s.Expired(r.now()) {
		return r.coldStart(ctx, limit, "Popular product")
	}

	interactions, err := r.repo.RecentInteractions(ctx, sessionID, InteractionWindow)
	if err != nil {
		return nil, err
	}
	if len(interactions) == 0 {
		return r.coldStart(ctx, limit, "Popular product")
	}

	seeds := r.buildSeeds(ctx, interactions)
	if len(seeds) == 0 {
		// History exists but nothing interacted with has an embedding.
		return r.coldStart(ctx, limit, "Popular product")
	}

	excluded := make(map[int64]bool, len(exclude)+len(interactions))
	for _, id := range exclude {
		excluded[id] = true
	}
	for _, i := range interactions {
		excluded[i.ProductID] = true
	}

	// Product vectors are unit length, so the multi-seed affinity is linear:
	// Σⱼ wⱼ·cos(e,sⱼ) = e · Σⱼ wⱼ·sⱼ. One index scan against the weighted
	// seed centroid ranks every candidate exactly, whatever the backend.
	centroid, norm := seedCentroid(seeds)
	if norm == 0 {
		return []Recommendation{}, nil
	}

	hits, err := r.index.Scan(ctx, centroid, nil, limit+len(excluded), nil)
	if err != nil {
		return nil, err
	}

	recs := make([]Recommendation, 0, limit)
	for _, h := range hits {
		if excluded[h.ProductID] {
			continue
		}
		affinity := h.Score * norm / float64(len(seeds))
		if affinity <= AffinityThreshold {
			break // hits are ordered, nothing later passes
		}
		p, err := r.repo.GetProduct(ctx, h.ProductID)
		if err != nil {
			r.logger.Warn("skipping recommendation with missing product",
				"product_id", h.ProductID, "error", err)
			continue
		}
		kind, cos := r.strongestSeed(ctx, seeds, h.ProductID)
		recs = append(recs, Recommendation{
			Product: *p,
			Score:   affinity,
			Reason:  affinityReason(kind, cos),
		})
		if len(recs) == limit {
			break
		}
	}
	return recs, nil
}

// seedCentroid returns the weighted sum of the seed vectors and its L2 norm.
// A zero norm means the seeds cancel out and nothing can score.
func seedCentroid(seeds []seedProduct) ([]float32, float64) {
	dims := len(seeds[0].vector)
	sum := make([]float64, dims)
	for i := range seeds {
		s := &seeds[i]
		if len(s.vector) != dims {
			continue
		}
		for d, v := range s.vector {
			sum[d] += s.weight * float64(v)
		}
	}

	centroid := make([]float32, dims)
	var sq float64
	for d, v := range sum {
		centroid[d] = float32(v)
		sq += float64(centroid[d]) * float64(centroid[d])
	}
	return centroid, math.Sqrt(sq)
}

// strongestSeed picks the seed contributing most to a candidate's affinity,
// weight included, for the shopper-facing reason.
func (r *Recommender) strongestSeed(ctx context.Context, seeds []seedProduct, productID int64) (catalog.InteractionKind, float64) {
	vec, ok := r.index.Lookup(ctx, productID)
	if !ok {
		return seeds[0].kind, 0
	}

	best := &seeds[0]
	bestCos := store.Cosine(vec, seeds[0].vector)
	bestContribution := seeds[0].weight * bestCos
	for j := 1; j < len(seeds); j++ {
		s := &seeds[j]
		cos := store.Cosine(vec, s.vector)
		if contribution := s.weight * cos; contribution > bestContribution {
			bestContribution = contribution
			bestCos = cos
			best = s
		}
	}
	return best.kind, bestCos
}

// buildSeeds weights each interacted product by kind and recency, keeping
// its maximum score and the kind that produced it. Seeds without an
// embedding are dropped.
func (r *Recommender) buildSeeds(ctx context.Context, interactions []catalog.Interaction) []seedProduct {
	n := len(interactions)
	byProduct := make(map[int64]*seedProduct, n)
	order := make([]int64, 0, n)

	for i, event := range interactions {
		base := interactionWeight[event.Kind]
		recency := 1 + float64(n-i)/float64(n)
		w := base * recency

		s, ok := byProduct[event.ProductID]
		if !ok {
			byProduct[event.ProductID] = &seedProduct{
				productID: event.ProductID,
				weight:    w,
				kind:      event.Kind,
			}
			order = append(order, event.ProductID)
			continue
		}
		if w > s.weight {
			s.weight = w
			s.kind = event.Kind
		}
	}

	seeds := make([]seedProduct, 0, len(byProduct))
	for _, id := range order {
		s := byProduct[id]
		e, err := r.repo.GetEmbedding(ctx, id)
		if err != nil {
			continue
		}
		s.vector = e.Vector
		seeds = append(seeds, *s)
	}
	return seeds
}

// affinityReason maps the strongest interaction onto a shopper-facing line.
func affinityReason(kind catalog.InteractionKind, cos float64) string {
	switch kind {
	case catalog.InteractionPurchase:
		return "Based on your purchase"
	case catalog.InteractionAddToCart:
		return "Similar to items in your cart"
	}
	switch {
	case cos > 0.8:
		return "Very similar to items you viewed"
	case cos > 0.6:
		return "Similar to your interests"
	case cos > 0.4:
		return "Related to your browsing"
	default:
		return "You might like this"
	}
}

// coldStart returns the top featured products by rating with a fixed reason
// and full score.
func (r *Recommender) coldStart(ctx context.Context, limit int, reason string) ([]Recommendation, error) {
	featured, err := r.repo.FeaturedProducts(ctx, limit)
	if err != nil {
		return nil, err
	}

	recs := make([]Recommendation, len(featured))
	for i, p := range featured {
		recs[i] = Recommendation{Product: p, Score: 1, Reason: reason}
	}
	return recs, nil
}

// Similar returns the nearest neighbors of a product by embedding cosine.
// Products without an embedding fall back to same-category picks.
func (r *Recommender) Similar(ctx context.Context, productID int64, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	target, err := r.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	embedding, err := r.repo.GetEmbedding(ctx, productID)
	if err != nil {
		if errors.KindOf(err) != errors.KindNotFound {
			return nil, err
		}
		return r.sameCategory(ctx, target, limit)
	}

	// One extra so the target itself can be skipped.
	hits, err := r.index.Scan(ctx, embedding.Vector, nil, limit+1, nil)
	if err != nil {
		return nil, err
	}

	recs := make([]Recommendation, 0, limit)
	for _, h := range hits {
		if h.ProductID == productID {
			continue
		}
		if h.Score <= SimilarityThreshold {
			break // hits are ordered, nothing later passes
		}
		p, err := r.repo.GetProduct(ctx, h.ProductID)
		if err != nil {
			continue
		}
		recs = append(recs, Recommendation{
			Product: *p,
			Score:   h.Score,
			Reason:  fmt.Sprintf("%d%% similar", int(h.Score*100)),
		})
		if len(recs) == limit {
			break
		}
	}
	return recs, nil
}

// sameCategory is the similarity fallback for products without a vector.
func (r *Recommender) sameCategory(ctx context.Context, target *catalog.Product, limit int) ([]Recommendation, error) {
	// Fetch one extra so dropping the target itself still fills the list.
	products, err := r.repo.ProductsByCategory(ctx, target.Category, limit+1)
	if err != nil {
		return nil, err
	}

	recs := make([]Recommendation, 0, limit)
	for i, p := range products {
		if p.ID == target.ID {
			continue
		}
		recs = append(recs, Recommendation{
			Product: p,
			Score:   1 - 0.05*float64(i),
			Reason:  "Same category",
		})
		if len(recs) == limit {
			break
		}
	}
	return recs, nil
}

// Trending returns the session-independent trending list: featured products
// by rating with a positional score. The list is cacheable.
func (r *Recommender) Trending(ctx context.Context, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	featured, err := r.repo.FeaturedProducts(ctx, limit)
	if err != nil {
		return nil, err
	}

	recs := make([]Recommendation, len(featured))
	for i, p := range featured {
		recs[i] = Recommendation{
			Product: p,
			Score:   1 - 0.05*float64(i),
			Reason:  "Trending now",
		}
	}
	return recs, nil
}
