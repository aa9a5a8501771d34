package engineimpl

import (
	"context"
	"net/http"
	"sync"

	"github.com/skazkalab/fairytale-engine/internal/auth"
	"github.com/skazkalab/fairytale-engine/internal/config"
	"github.com/skazkalab/fairytale-engine/internal/domain"
	"github.com/skazkalab/fairytale-engine/internal/engine"
	"github.com/skazkalab/fairytale-engine/internal/ratelimit"
	"github.com/skazkalab/fairytale-engine/internal/repositories/ledger"
	"github.com/skazkalab/fairytale-engine/internal/repositories/library"
	"github.com/skazkalab/fairytale-engine/internal/storyapi"
	"github.com/skazkalab/fairytale-engine/pkg/errors"
	"github.com/skazkalab/fairytale-engine/pkg/formatter"
	"github.com/skazkalab/fairytale-engine/pkg/logger"
	"go.uber.org/fx"
)

// CodeReauthRequired marks errors that must route the user to the
// re-authentication surface instead of the generic retry path.
const CodeReauthRequired = "REAUTH_REQUIRED"

type EngineImpl struct {
	mu       sync.Mutex
	fetching bool
	current  *domain.Story
	// queue is the unread snapshot the cursor walks; advancing uses the
	// cursor rather than a fresh filter so concurrent ledger merges
	// cannot make the selection skip or repeat stories mid-walk.
	queue    []domain.Story
	queueIdx int
	// sessionUser is the identity the snapshot was derived for; a
	// mismatch with the live session invalidates cursor and current.
	sessionUser string

	LibraryRepo library.Repository
	LedgerRepo  ledger.Repository
	StoryAPI    storyapi.Client
	Auth        auth.Manager
	Taps        ratelimit.Limiter
	Logger      logger.Logger
	Config      *config.Config
}

type Opts struct {
	fx.In

	LibraryRepo library.Repository
	LedgerRepo  ledger.Repository
	StoryAPI    storyapi.Client
	Auth        auth.Manager
	Taps        ratelimit.Limiter
	Logger      logger.Logger
	Config      *config.Config
}

func New(opts Opts) *EngineImpl {
	return &EngineImpl{
		LibraryRepo: opts.LibraryRepo,
		LedgerRepo:  opts.LedgerRepo,
		StoryAPI:    opts.StoryAPI,
		Auth:        opts.Auth,
		Taps:        opts.Taps,
		Logger:      opts.Logger,
		Config:      opts.Config,
	}
}

var _ engine.Client = (*EngineImpl)(nil)

func (e *EngineImpl) SelectCurrentStory(ctx context.Context, requestedStoryID string) (*domain.Story, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncSessionLocked()

	if requestedStoryID != "" {
		story, err := e.LibraryRepo.GetByStoryID(ctx, requestedStoryID)
		if err != nil {
			if errors.Is(err, library.ErrNotFound) {
				return nil, engine.ErrStoryUnavailable
			}
			return nil, err
		}
		// History replay is not a first view; the ledger stays as is.
		e.current = story
		return story, nil
	}

	unread, err := e.unreadStories(ctx)
	if err != nil {
		return nil, err
	}
	if len(unread) == 0 {
		return nil, engine.ErrNoUnreadStories
	}

	if err := e.present(ctx, unread[0]); err != nil {
		return nil, err
	}
	e.queue = unread
	e.queueIdx = 0
	return e.current, nil
}

func (e *EngineImpl) HandleNewStoryRequest(ctx context.Context, themes []string, blocked bool) error {
	e.mu.Lock()

	userID := e.syncSessionLocked()

	if blocked || e.fetching {
		e.mu.Unlock()
		return nil
	}

	if !e.Taps.Allow(userID) {
		e.mu.Unlock()
		e.Logger.Debug("New-story request throttled", "user_id", userID)
		return nil
	}

	// Advance the cursor within the existing unread snapshot first.
	if e.queueIdx+1 < len(e.queue) {
		next := e.queue[e.queueIdx+1]
		if err := e.present(ctx, next); err != nil {
			e.mu.Unlock()
			return err
		}
		e.queueIdx++
		e.mu.Unlock()
		return nil
	}

	unread, err := e.unreadStories(ctx)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if len(unread) > 0 {
		if err := e.present(ctx, unread[0]); err != nil {
			e.mu.Unlock()
			return err
		}
		e.queue = unread
		e.queueIdx = 0
		e.mu.Unlock()
		return nil
	}

	// Local content exhausted: replenish. The flag is the coalescing
	// guard; calls arriving while the fetch is in flight are dropped.
	e.fetching = true
	viewed, err := e.LedgerRepo.ListByUserID(ctx, userID)
	if err != nil {
		e.fetching = false
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	e.Logger.Info("Unread stories exhausted, fetching a new batch",
		"user_id", userID, "themes", themes, "viewed_count", len(viewed))

	result, fetchErr := e.StoryAPI.FetchStories(ctx, themes, viewed, userID)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.fetching = false

	// The session may have been replaced while the fetch ran; its
	// result belongs to the old identity and is dropped.
	if e.syncSessionLocked() != userID {
		e.Logger.Info("Discarding story fetch for a replaced session", "user_id", userID)
		return nil
	}

	if fetchErr != nil {
		// The previously presented story stays on screen; nothing is
		// merged on failure.
		e.Logger.Error("Story fetch failed", "error", fetchErr)
		return e.wrapFetchError(fetchErr)
	}

	// Stories before history, both under the engine lock, so dependent
	// reads never observe a half-merged response.
	if err := e.LibraryRepo.AddStories(ctx, result.Stories); err != nil {
		return err
	}
	if err := e.LedgerRepo.AddEntries(ctx, result.History); err != nil {
		return err
	}

	// Re-derive instead of trusting the batch: the server's exclusion
	// of viewed stories is advisory only.
	unread, err = e.unreadStories(ctx)
	if err != nil {
		return err
	}
	if len(unread) == 0 {
		e.Logger.Warn("Fetched batch contained no unread stories", "batch_size", len(result.Stories))
		return &errors.Error{
			Message: e.Config.Engine.DefaultErrorMessage,
			Err:     engine.ErrNoUnreadStories,
		}
	}

	if err := e.present(ctx, unread[0]); err != nil {
		return err
	}
	e.queue = unread
	e.queueIdx = 0
	return nil
}

func (e *EngineImpl) Current() (*domain.Story, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncSessionLocked()
	if e.current == nil {
		return nil, false
	}
	story := *e.current
	return &story, true
}

func (e *EngineImpl) LoadStoryByID(ctx context.Context, storyID string) (*domain.Story, error) {
	story, err := e.StoryAPI.LoadStoryByID(ctx, storyID)
	if err != nil {
		return nil, e.wrapFetchError(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.LibraryRepo.AddStories(ctx, []domain.Story{*story}); err != nil {
		return nil, err
	}
	return story, nil
}

func (e *EngineImpl) LoadHistory(ctx context.Context) error {
	userID := e.Auth.Session().UserID
	history, err := e.StoryAPI.FetchHistoryByUserID(ctx, userID)
	if err != nil {
		return e.wrapFetchError(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.LedgerRepo.AddEntries(ctx, history)
}

func (e *EngineImpl) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = nil
	e.queue = nil
	e.queueIdx = 0
	e.fetching = false
	e.sessionUser = ""
}

// syncSessionLocked drops the cursor and the presented story when the
// live session identity differs from the one the snapshot was derived
// for, so no content crosses a logout/login boundary. Returns the live
// user id.
func (e *EngineImpl) syncSessionLocked() string {
	userID := e.Auth.Session().UserID
	if userID != e.sessionUser {
		e.current = nil
		e.queue = nil
		e.queueIdx = 0
		e.sessionUser = userID
	}
	return userID
}

// present records the view in the ledger before the displayed story
// changes, so an interruption mid-transition cannot leave a story shown
// but unrecorded.
func (e *EngineImpl) present(ctx context.Context, story domain.Story) error {
	entry := domain.HistoryEntry{
		UserID:  e.Auth.Session().UserID,
		StoryID: story.StoryID,
		Title:   story.Title,
	}
	if err := e.LedgerRepo.AddEntries(ctx, []domain.HistoryEntry{entry}); err != nil {
		return err
	}
	e.current = &story
	e.Logger.Debug("Presenting story",
		"story_id", story.StoryID,
		"title", story.Title,
		"preview", formatter.Excerpt(story.Content, 48))
	return nil
}

// unreadStories filters the library down to stories the current user
// has not been shown, preserving insertion order.
func (e *EngineImpl) unreadStories(ctx context.Context) ([]domain.Story, error) {
	all, err := e.LibraryRepo.All(ctx)
	if err != nil {
		return nil, err
	}
	viewed, err := e.LedgerRepo.ListByUserID(ctx, e.Auth.Session().UserID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(viewed))
	for _, entry := range viewed {
		seen[entry.StoryID] = struct{}{}
	}

	var unread []domain.Story
	for _, story := range all {
		if _, ok := seen[story.StoryID]; !ok {
			unread = append(unread, story)
		}
	}
	return unread, nil
}

// wrapFetchError converts a transport failure into UI-facing state: a
// 401 is routed to re-authentication, everything else keeps the server
// message only when it is in the user-facing language.
func (e *EngineImpl) wrapFetchError(err error) error {
	status := errors.GetHTTPStatus(err)

	if status == http.StatusUnauthorized || errors.IsUnauthorized(err) {
		return &errors.Error{
			Code:       CodeReauthRequired,
			Message:    e.Config.Engine.DefaultErrorMessage,
			HTTPStatus: http.StatusUnauthorized,
			Err:        err,
		}
	}

	// A Cyrillic message is the backend's localized user-facing text;
	// anything else is a technical string end users must not see.
	message := errors.GetMessage(err)
	if !formatter.HasCyrillic(message) {
		message = e.Config.Engine.DefaultErrorMessage
	}

	return &errors.Error{
		Message:    message,
		HTTPStatus: status,
		Err:        err,
	}
}
