package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcart/discovery/internal/cache"
	"github.com/smartcart/discovery/internal/catalog"
	"github.com/smartcart/discovery/internal/embed"
	"github.com/smartcart/discovery/internal/errors"
	"github.com/smartcart/discovery/internal/rank"
	"github.com/smartcart/discovery/internal/session"
	"github.com/smartcart/discovery/internal/store"
)

// timeoutEmbedder simulates an embedding service that never answers in time.
type timeoutEmbedder struct {
	embed.Embedder
}

func (e *timeoutEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New(errors.ErrCodeEmbeddingTimeout, "embedding request timed out", nil)
}

type fixture struct {
	repo  *store.MemoryRepository
	index *store.MemoryIndex
	orch  *Orchestrator
}

func newFixture(t *testing.T, embedder embed.Embedder) *fixture {
	t.Helper()
	repo := store.NewMemoryRepository()
	index := store.NewMemoryIndex(embed.DefaultDimensions)
	det := embed.NewDeterministicEmbedder(embed.DefaultDimensions)
	if embedder == nil {
		embedder = det
	}

	orch := NewOrchestrator(Config{
		Repo:     repo,
		Index:    index,
		Embedder: embedder,
		Fallback: det,
		Ranker:   rank.NewRanker(det, nil),
		Weights:  cache.NewWeightsCache(repo),
		Tracker:  session.NewTracker(repo, nil),
	})
	return &fixture{repo: repo, index: index, orch: orch}
}

func (f *fixture) addProduct(t *testing.T, p catalog.Product, withEmbedding bool) int64 {
	t.Helper()
	ctx := context.Background()
	if p.Availability == "" {
		p.Availability = catalog.AvailabilityInStock
	}
	if p.Price == 0 {
		p.Price = 25
	}
	require.NoError(t, f.repo.CreateProduct(ctx, &p))

	if withEmbedding {
		det := embed.NewDeterministicEmbedder(embed.DefaultDimensions)
		vec, err := det.Embed(ctx, p.SearchText())
		require.NoError(t, err)
		require.NoError(t, f.repo.UpsertEmbedding(ctx, &catalog.Embedding{
			ProductID: p.ID, Vector: vec, SourceText: p.SearchText(), Model: det.ModelName(),
		}))
		require.NoError(t, f.index.Upsert(ctx, p.ID, vec))
	}
	return p.ID
}

func TestSearchReturnsRankedResults(t *testing.T) {
	f := newFixture(t, nil)
	target := f.addProduct(t, catalog.Product{
		Title: "Wireless Bluetooth Headphones", Category: "Electronics",
	}, true)
	f.addProduct(t, catalog.Product{
		Title: "Ceramic Coffee Mug", Category: "Kitchen",
	}, true)

	resp, err := f.orch.Search(context.Background(), Request{
		Query: "wireless bluetooth headphones",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	assert.Equal(t, target, resp.Results[0].Product.ID)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.False(t, resp.Degraded)
	assert.Empty(t, resp.Fallback)
	assert.NotEmpty(t, resp.SessionID)
	assert.NotZero(t, resp.SearchLogID)

	// Scores never increase down the list.
	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t,
			resp.Results[i-1].FinalScore, resp.Results[i].FinalScore)
	}
}

func TestSearchPersistsLogAndExplanations(t *testing.T) {
	f := newFixture(t, nil)
	f.addProduct(t, catalog.Product{Title: "Running Shoes", Category: "Sports"}, true)

	ctx := context.Background()
	resp, err := f.orch.Search(ctx, Request{Query: "running shoes"})
	require.NoError(t, err)
	require.NotZero(t, resp.SearchLogID)

	log, err := f.repo.GetSearchLog(ctx, resp.SearchLogID)
	require.NoError(t, err)
	assert.Equal(t, "running shoes", log.Query)
	assert.Equal(t, len(resp.Results), log.ResultCount)
	assert.NotEmpty(t, log.QueryEmbedding)

	explanations, err := f.repo.ExplanationsForLog(ctx, resp.SearchLogID)
	require.NoError(t, err)
	require.Len(t, explanations, len(resp.Results))

	// The persisted rows reproduce the ranked order exactly.
	for i, e := range explanations {
		assert.Equal(t, resp.Results[i].Product.ID, e.ProductID)
		assert.Equal(t, resp.Results[i].Rank, e.Position)
		assert.InDelta(t, resp.Results[i].FinalScore, e.FinalScore, 1e-9)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.orch.Search(context.Background(), Request{Query: ""})
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
}

func TestSearchLimitValidation(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.orch.Search(context.Background(), Request{
		Query: "anything", Limit: catalog.MaxSearchLimit + 1,
	})
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
}

func TestSearchKeywordFallback(t *testing.T) {
	f := newFixture(t, nil)
	toy := f.addProduct(t, catalog.Product{
		Title: "Unicorn Plush Toy", Category: "Toys",
		Rating: ratingPtr(4.0),
	}, true)

	// A threshold no semantic score can clear forces the keyword path.
	resp, err := f.orch.Search(context.Background(), Request{
		Query:   "unicorn plush",
		Filters: catalog.FilterBag{MinScore: 5},
	})
	require.NoError(t, err)

	assert.Equal(t, FallbackKeyword, resp.Fallback)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, toy, resp.Results[0].Product.ID)
	assert.InDelta(t, 0.5, resp.Results[0].FinalScore, 1e-9)
	assert.InDelta(t, 0.8, resp.Results[0].SubScores.Rating, 1e-9)
	assert.InDelta(t, 0.5, resp.Results[0].SubScores.Price, 1e-9)
	assert.InDelta(t, 1.0, resp.Results[0].SubScores.Stock, 1e-9)
	assert.InDelta(t, 0.5, resp.Results[0].SubScores.Recency, 1e-9)

	// The fallback still writes a search log.
	assert.NotZero(t, resp.SearchLogID)
	log, err := f.repo.GetSearchLog(context.Background(), resp.SearchLogID)
	require.NoError(t, err)
	assert.Equal(t, 1, log.ResultCount)
}

func TestSearchNoResultsNoFallbackWritesNoLog(t *testing.T) {
	f := newFixture(t, nil)
	f.addProduct(t, catalog.Product{Title: "Desk Lamp", Category: "Home"}, true)

	// Every token is too short to be a fallback term.
	resp, err := f.orch.Search(context.Background(), Request{
		Query:   "xy zq",
		Filters: catalog.FilterBag{MinScore: 5},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Empty(t, resp.Fallback)
	assert.Zero(t, resp.SearchLogID)

	logs, err := f.repo.ListSearchLogs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestSearchDegradedEmbedding(t *testing.T) {
	f := newFixture(t, &timeoutEmbedder{})
	f.addProduct(t, catalog.Product{
		Title: "Wireless Bluetooth Headphones", Category: "Electronics",
	}, true)

	resp, err := f.orch.Search(context.Background(), Request{
		Query: "wireless bluetooth headphones",
	})
	require.NoError(t, err)

	// The deterministic path still ranks; the response is flagged.
	assert.True(t, resp.Degraded)
	assert.NotEmpty(t, resp.Results)
}

func TestSearchCancelledWritesNoLog(t *testing.T) {
	f := newFixture(t, nil)
	f.addProduct(t, catalog.Product{Title: "Garden Hose", Category: "Garden"}, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Search(ctx, Request{Query: "garden hose"})
	require.Error(t, err)
	assert.Equal(t, errors.KindCancelled, errors.KindOf(err))

	logs, err := f.repo.ListSearchLogs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestSearchFilters(t *testing.T) {
	f := newFixture(t, nil)
	f.addProduct(t, catalog.Product{
		Title: "Steel Water Bottle", Category: "Kitchen", Price: 15,
	}, true)
	expensive := f.addProduct(t, catalog.Product{
		Title: "Copper Water Bottle", Category: "Kitchen", Price: 80,
	}, true)

	max := 50.0
	resp, err := f.orch.Search(context.Background(), Request{
		Query:   "water bottle",
		Filters: catalog.FilterBag{MaxPrice: &max},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.NotEqual(t, expensive, r.Product.ID)
		assert.LessOrEqual(t, r.Product.Price, max)
	}
}

func TestSearchMinScoreFilter(t *testing.T) {
	f := newFixture(t, nil)
	f.addProduct(t, catalog.Product{
		Title: "Wireless Bluetooth Headphones", Category: "Electronics",
	}, true)
	f.addProduct(t, catalog.Product{
		Title: "Ceramic Coffee Mug", Category: "Kitchen",
	}, true)

	baseline, err := f.orch.Search(context.Background(), Request{
		Query: "wireless bluetooth headphones",
	})
	require.NoError(t, err)
	require.Len(t, baseline.Results, 2)

	// A threshold between the two scores keeps only the top result.
	cutoff := (baseline.Results[0].FinalScore + baseline.Results[1].FinalScore) / 2
	resp, err := f.orch.Search(context.Background(), Request{
		Query:   "wireless bluetooth headphones",
		Filters: catalog.FilterBag{MinScore: cutoff},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, baseline.Results[0].Product.ID, resp.Results[0].Product.ID)
	assert.GreaterOrEqual(t, resp.Results[0].FinalScore, cutoff)
}

func TestSearchReusesSessionID(t *testing.T) {
	f := newFixture(t, nil)
	f.addProduct(t, catalog.Product{Title: "Yoga Mat", Category: "Sports"}, true)

	first, err := f.orch.Search(context.Background(), Request{Query: "yoga mat"})
	require.NoError(t, err)

	second, err := f.orch.Search(context.Background(), Request{
		Query: "yoga mat", SessionID: first.SessionID,
	})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
}

func ratingPtr(v float64) *float64 { return &v }
