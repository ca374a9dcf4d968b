package rank

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/smartcart/discovery/internal/catalog"
	"github.com/smartcart/discovery/internal/embed"
	"github.com/smartcart/discovery/internal/store"
)

// Candidate is one product entering the ranker, with its stored embedding
// when one exists.
type Candidate struct {
	Product catalog.Product
	Vector  []float32 // nil when the product has no precomputed embedding
}

// SubScores is the per-feature decomposition of a final score.
type SubScores struct {
	Semantic float64 `json:"semantic"`
	Rating   float64 `json:"rating"`
	Price    float64 `json:"price"`
	Stock    float64 `json:"stock"`
	Recency  float64 `json:"recency"`
}

// Result is one ranked product with its score breakdown. This is the single
// result shape the core exposes; transports serialize it as they see fit.
type Result struct {
	Product      catalog.Product    `json:"product"`
	FinalScore   float64            `json:"final_score"`
	SubScores    SubScores          `json:"sub_scores"`
	MatchedTerms catalog.StringList `json:"matched_terms"`
	Explanation  string             `json:"explanation"`
	Rank         int                `json:"rank"`
}

// Options tune a single ranking pass.
type Options struct {
	// MinScore filters results below the threshold. Zero means the default.
	MinScore float64
	// Limit truncates the ranked list. Zero means no truncation.
	Limit int
	// Now anchors recency scoring; the zero value means time.Now.
	Now time.Time
}

// Ranker combines semantic similarity with feature scores under the active
// weights. It is stateless apart from the fallback embedder used for
// candidates that lack a stored vector.
type Ranker struct {
	fallback embed.Embedder
	logger   *slog.Logger
}

// NewRanker creates a ranker. fallback supplies vectors for candidates with
// no stored embedding and is expected to be the deterministic embedder.
func NewRanker(fallback embed.Embedder, logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{fallback: fallback, logger: logger}
}

// Rank scores every candidate, filters by threshold, sorts descending with
// ties broken by product id ascending, truncates, and assigns 1-based ranks.
// An empty candidate set yields an empty result, not an error.
func (r *Ranker) Rank(ctx context.Context, query string, queryVec []float32,
	candidates []Candidate, weights *catalog.RankingWeights, opts Options) ([]Result, error) {
	if len(candidates) == 0 {
		return []Result{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts.MinScore == 0 {
		opts.MinScore = catalog.DefaultMinScore
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	terms := QueryTerms(query)
	priceMin, priceMax := PriceBounds(candidates)

	results := make([]Result, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]

		vec := c.Vector
		if vec == nil {
			v, err := r.fallback.Embed(ctx, c.Product.SearchText())
			if err != nil {
				r.logger.Warn("fallback embedding failed, skipping candidate",
					"product_id", c.Product.ID, "error", err)
				continue
			}
			vec = v
		}

		semantic := store.Cosine(queryVec, vec)
		if semantic < 0 {
			semantic = 0
		}

		matched := MatchedTerms(terms, &c.Product)
		// Keyword boost is additive, then the boosted similarity is clamped
		// back into [0,1] so a literal match cannot dominate the combine.
		boosted := clamp01(semantic + KeywordBoost(matched, terms))

		sub := SubScores{
			Semantic: boosted,
			Rating:   RatingScore(&c.Product),
			Price:    PriceScore(&c.Product, priceMin, priceMax),
			Stock:    StockScore(&c.Product),
			Recency:  RecencyScore(&c.Product, now),
		}
		final := weights.Alpha*sub.Semantic +
			weights.Beta*sub.Rating +
			weights.Gamma*sub.Price +
			weights.Delta*sub.Stock +
			weights.Epsilon*sub.Recency

		if final < opts.MinScore {
			continue
		}

		results = append(results, Result{
			Product:      c.Product,
			FinalScore:   final,
			SubScores:    sub,
			MatchedTerms: toStringList(matched),
			Explanation:  Explain(&c.Product, sub, matched),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		return results[i].Product.ID < results[j].Product.ID
	})

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}
