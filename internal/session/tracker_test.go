package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcart/discovery/internal/catalog"
	"github.com/smartcart/discovery/internal/errors"
	"github.com/smartcart/discovery/internal/store"
)

func seedProducts(t *testing.T, repo *store.MemoryRepository, n int) []int64 {
	t.Helper()
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		p := &catalog.Product{
			Title:        "Product",
			Price:        float64(10 + i),
			Availability: catalog.AvailabilityInStock,
		}
		require.NoError(t, repo.CreateProduct(context.Background(), p))
		ids[i] = p.ID
	}
	return ids
}

func TestTouchIssuesSessionID(t *testing.T) {
	repo := store.NewMemoryRepository()
	tracker := NewTracker(repo, nil)

	s, err := tracker.Touch(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, s.CreatedAt.Add(catalog.SessionTTL), s.ExpiresAt)
}

func TestTouchBumpsLastActive(t *testing.T) {
	repo := store.NewMemoryRepository()
	tracker := NewTracker(repo, nil)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	current := base
	tracker.now = func() time.Time { return current }

	s, err := tracker.Touch(ctx, "sess-1")
	require.NoError(t, err)

	current = base.Add(time.Hour)
	s, err = tracker.Touch(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, base, s.CreatedAt)
	assert.Equal(t, base.Add(time.Hour), s.LastActiveAt)
	assert.Equal(t, base.Add(catalog.SessionTTL), s.ExpiresAt)
}

func TestTouchReplacesExpiredSession(t *testing.T) {
	repo := store.NewMemoryRepository()
	tracker := NewTracker(repo, nil)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := base
	tracker.now = func() time.Time { return current }

	_, err := tracker.Touch(ctx, "sess-1")
	require.NoError(t, err)

	current = base.Add(31 * 24 * time.Hour)
	s, err := tracker.Touch(ctx, "sess-1")
	require.NoError(t, err)
	assert.NotEqual(t, "sess-1", s.ID)
	assert.Equal(t, current, s.CreatedAt)
	assert.False(t, s.Expired(current))
}

func TestRecordLandsOnReplacementSession(t *testing.T) {
	repo := store.NewMemoryRepository()
	tracker := NewTracker(repo, nil)
	ctx := context.Background()
	ids := seedProducts(t, repo, 1)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := base
	tracker.now = func() time.Time { return current }

	_, err := tracker.Touch(ctx, "sess-1")
	require.NoError(t, err)

	current = base.Add(31 * 24 * time.Hour)
	event := &catalog.Interaction{
		SessionID: "sess-1", ProductID: ids[0], Kind: catalog.InteractionView,
	}
	require.NoError(t, tracker.Record(ctx, event))
	assert.NotEqual(t, "sess-1", event.SessionID)

	// The stale session keeps no new history.
	recent, err := tracker.RecentInteractions(ctx, "sess-1", 0)
	require.NoError(t, err)
	assert.Empty(t, recent)

	recent, err = tracker.RecentInteractions(ctx, event.SessionID, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestRecordAndRecentInteractions(t *testing.T) {
	repo := store.NewMemoryRepository()
	tracker := NewTracker(repo, nil)
	ctx := context.Background()
	ids := seedProducts(t, repo, 3)

	for _, id := range ids {
		require.NoError(t, tracker.Record(ctx, &catalog.Interaction{
			SessionID: "sess-1", ProductID: id, Kind: catalog.InteractionView,
		}))
	}

	recent, err := tracker.RecentInteractions(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)

	// Most recent first; same-timestamp events order by insertion.
	assert.Equal(t, ids[2], recent[0].ProductID)
	assert.Equal(t, ids[0], recent[2].ProductID)
}

func TestRecordRejectsInvalidKind(t *testing.T) {
	repo := store.NewMemoryRepository()
	tracker := NewTracker(repo, nil)

	err := tracker.Record(context.Background(), &catalog.Interaction{
		SessionID: "sess-1", ProductID: 1, Kind: "hover",
	})
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
}

func TestRecordRejectsUnknownProduct(t *testing.T) {
	repo := store.NewMemoryRepository()
	tracker := NewTracker(repo, nil)

	err := tracker.Record(context.Background(), &catalog.Interaction{
		SessionID: "sess-1", ProductID: 404, Kind: catalog.InteractionView,
	})
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestRecentlyViewedDistinct(t *testing.T) {
	repo := store.NewMemoryRepository()
	tracker := NewTracker(repo, nil)
	ctx := context.Background()
	ids := seedProducts(t, repo, 3)

	events := []struct {
		productID int64
		kind      catalog.InteractionKind
	}{
		{ids[0], catalog.InteractionView},
		{ids[1], catalog.InteractionView},
		{ids[0], catalog.InteractionView},       // repeat view collapses
		{ids[2], catalog.InteractionAddToCart},  // non-view excluded
	}
	for _, e := range events {
		require.NoError(t, tracker.Record(ctx, &catalog.Interaction{
			SessionID: "sess-1", ProductID: e.productID, Kind: e.kind,
		}))
	}

	viewed, err := tracker.RecentlyViewed(ctx, "sess-1", 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[0], ids[1]}, viewed)
}

func TestSearchClickMarksExplanation(t *testing.T) {
	repo := store.NewMemoryRepository()
	tracker := NewTracker(repo, nil)
	ctx := context.Background()
	ids := seedProducts(t, repo, 1)

	log := &catalog.SearchLog{SessionID: "sess-1", Query: "widget", ResultCount: 1}
	require.NoError(t, repo.SaveSearchLog(ctx, log, []catalog.SearchResultExplanation{
		{ProductID: ids[0], Position: 1, FinalScore: 0.9},
	}))

	require.NoError(t, tracker.Record(ctx, &catalog.Interaction{
		SessionID: "sess-1", ProductID: ids[0],
		Kind: catalog.InteractionSearchClick, Query: "widget", Position: 1,
	}))

	explanations, err := repo.ExplanationsForLog(ctx, log.ID)
	require.NoError(t, err)
	require.Len(t, explanations, 1)
	assert.True(t, explanations[0].WasClicked)
}
