// Package session records shopper interactions and answers recency queries
// over them. Sessions are anonymous, identified by a caller-supplied id, and
// expire 30 days after creation.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/smartcart/discovery/internal/catalog"
	"github.com/smartcart/discovery/internal/store"
)

// DefaultRecentLimit bounds recency queries when the caller passes zero.
const DefaultRecentLimit = 20

// Tracker ingests interaction events and serves recency queries. All state
// lives in the repository; the tracker itself is stateless and safe for
// concurrent use.
type Tracker struct {
	repo   store.Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker over the repository.
func NewTracker(repo store.Repository, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{repo: repo, logger: logger, now: time.Now}
}

// NewSessionID issues a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Touch resolves a session id: an empty id gets a fresh one, and the session
// row is created or its last-active timestamp bumped. A stale id gets a fresh
// session instead of an error, so an expired cookie cannot fail a request or
// resurrect old history.
func (t *Tracker) Touch(ctx context.Context, sessionID string) (*catalog.Session, error) {
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	now := t.now()
	s, err := t.repo.TouchSession(ctx, sessionID, now)
	if err != nil {
		return nil, err
	}
	if s.Expired(now) {
		t.logger.Info("replacing expired session", "session_id", sessionID)
		fresh, err := t.repo.TouchSession(ctx, NewSessionID(), now)
		if err != nil {
			return nil, err
		}
		return fresh, nil
	}
	return s, nil
}

// Record ingests one interaction event, stamping creation time server-side.
// An expired session id is replaced, and the event lands on the replacement.
// A search_click with a query additionally marks the matching explanation
// row clicked; failure to attribute the click is logged, not fatal.
func (t *Tracker) Record(ctx context.Context, i *catalog.Interaction) error {
	if err := i.Validate(); err != nil {
		return err
	}
	s, err := t.Touch(ctx, i.SessionID)
	if err != nil {
		return err
	}
	i.SessionID = s.ID
	if err := t.repo.AddInteraction(ctx, i); err != nil {
		return err
	}

	if i.Kind == catalog.InteractionSearchClick && i.Query != "" {
		t.attributeClick(ctx, i)
	}
	return nil
}

func (t *Tracker) attributeClick(ctx context.Context, i *catalog.Interaction) {
	log, err := t.repo.LatestSearchLog(ctx, i.SessionID, i.Query)
	if err != nil {
		t.logger.Debug("no search log to attribute click to",
			"session_id", i.SessionID, "query", i.Query)
		return
	}
	if err := t.repo.MarkExplanationClicked(ctx, log.ID, i.ProductID); err != nil {
		t.logger.Warn("failed to mark explanation clicked",
			"search_log_id", log.ID, "product_id", i.ProductID, "error", err)
	}
}

// RecentInteractions returns the session's events most-recent-first.
func (t *Tracker) RecentInteractions(ctx context.Context, sessionID string, limit int) ([]catalog.Interaction, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return t.repo.RecentInteractions(ctx, sessionID, limit)
}

// RecentlyViewed returns distinct product ids from view events,
// most-recent-first.
func (t *Tracker) RecentlyViewed(ctx context.Context, sessionID string, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	// Over-fetch: repeat views of the same product collapse to one entry.
	interactions, err := t.repo.RecentInteractions(ctx, sessionID, limit*5)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, limit)
	viewed := make([]int64, 0, limit)
	for _, i := range interactions {
		if i.Kind != catalog.InteractionView || seen[i.ProductID] {
			continue
		}
		seen[i.ProductID] = true
		viewed = append(viewed, i.ProductID)
		if len(viewed) == limit {
			break
		}
	}
	return viewed, nil
}
