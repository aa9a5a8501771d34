package engine

import (
	"context"
	"errors"

	"github.com/skazkalab/fairytale-engine/internal/domain"
)

// ErrStoryUnavailable means a story requested by ID (history tap,
// deep link) is not in the local library. No fallback fetch is issued
// for this path.
var ErrStoryUnavailable = errors.New("story unavailable")

// ErrNoUnreadStories means the library holds no unread story for the
// current user, so a replenishment fetch is required.
var ErrNoUnreadStories = errors.New("no unread stories")

//go:generate go run go.uber.org/mock/mockgen -source=engine.go -destination=mocks/mock.go

// Client is the story selection and replenishment coordinator. It
// decides whether the next story comes from the local library or from a
// backend fetch, and owns the only mutation path into the library and
// ledger outside of login/logout resets.
type Client interface {
	// SelectCurrentStory resolves the story to present. A non-empty
	// requestedStoryID is a history replay: it is served from the
	// library without a ledger write, or fails with ErrStoryUnavailable.
	// Otherwise the first unread story (insertion order) is presented
	// and recorded in the ledger; ErrNoUnreadStories signals that a
	// replenishment fetch is needed.
	SelectCurrentStory(ctx context.Context, requestedStoryID string) (*domain.Story, error)

	// HandleNewStoryRequest advances to the next story. It is a no-op
	// when blocked or while a fetch is already in flight (at most one
	// concurrent fetch; extra calls are ignored, not queued). When the
	// local unread set is exhausted it issues one fetch, merges the
	// response atomically, and presents from the re-derived unread set.
	HandleNewStoryRequest(ctx context.Context, themes []string, blocked bool) error

	// Current returns the story being presented, if any.
	Current() (*domain.Story, bool)

	// LoadStoryByID fetches a single story from the backend and merges
	// it into the library without presenting it.
	LoadStoryByID(ctx context.Context, storyID string) (*domain.Story, error)

	// LoadHistory pulls the user's server-side viewed history into the
	// ledger.
	LoadHistory(ctx context.Context) error

	// Reset drops the presentation cursor. Called when the session is
	// torn down.
	Reset()
}
