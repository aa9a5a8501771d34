package engineimpl

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/skazkalab/fairytale-engine/internal/auth"
	"github.com/skazkalab/fairytale-engine/internal/config"
	"github.com/skazkalab/fairytale-engine/internal/domain"
	"github.com/skazkalab/fairytale-engine/internal/engine"
	"github.com/skazkalab/fairytale-engine/internal/ratelimit"
	"github.com/skazkalab/fairytale-engine/internal/repositories/ledger"
	"github.com/skazkalab/fairytale-engine/internal/repositories/library"
	"github.com/skazkalab/fairytale-engine/internal/storyapi"
	mock_storyapi "github.com/skazkalab/fairytale-engine/internal/storyapi/mocks"
	"github.com/skazkalab/fairytale-engine/pkg/errors"
	"github.com/skazkalab/fairytale-engine/pkg/logger"
	"go.uber.org/mock/gomock"
)

const testUser = "u1"
const defaultMessage = "Ошибка загрузки сказки. Попробуйте позже."

type stubAuth struct {
	session domain.AuthSession
}

func (s *stubAuth) LoginWithGoogle(context.Context, string, string) (domain.AuthSession, error) {
	return s.session, nil
}
func (s *stubAuth) CheckTokenExpiry(context.Context) (string, error) {
	return s.session.AccessToken, nil
}
func (s *stubAuth) Logout(context.Context) error            { return nil }
func (s *stubAuth) Session() domain.AuthSession             { return s.session }
func (s *stubAuth) AccessToken() string                     { return s.session.AccessToken }
func (s *stubAuth) ScheduleExpiryCheck(context.Context) error { return nil }

var _ auth.Manager = (*stubAuth)(nil)

func newTestEngine(t *testing.T, api storyapi.Client) (*EngineImpl, library.Repository, ledger.Repository) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Engine.DefaultErrorMessage = defaultMessage

	lib := library.NewMemoryRepository()
	led := ledger.NewMemoryRepository()

	e := New(Opts{
		LibraryRepo: lib,
		LedgerRepo:  led,
		StoryAPI:    api,
		Auth:        &stubAuth{session: domain.AuthSession{UserID: testUser, IsAuthenticated: true}},
		Taps:        ratelimit.NewInMemoryLimiter(100, time.Second, 100),
		Logger:      logger.New(logger.Opts{}),
		Config:      cfg,
	})
	return e, lib, led
}

func seedLibrary(t *testing.T, lib library.Repository, ids ...string) {
	t.Helper()
	var batch []domain.Story
	for _, id := range ids {
		batch = append(batch, domain.Story{StoryID: id, Title: "title-" + id, Content: "content-" + id})
	}
	if err := lib.AddStories(context.Background(), batch); err != nil {
		t.Fatalf("seed library: %v", err)
	}
}

func TestFIFOPresentation(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_storyapi.NewMockClient(ctrl)
	e, lib, led := newTestEngine(t, api)
	ctx := context.Background()

	seedLibrary(t, lib, "a", "b", "c")

	want := []string{"a", "b", "c"}
	for i, id := range want {
		if err := e.HandleNewStoryRequest(ctx, nil, false); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		current, ok := e.Current()
		if !ok || current.StoryID != id {
			t.Fatalf("request %d: expected story %q, got %+v", i, id, current)
		}

		entries, _ := led.ListByUserID(ctx, testUser)
		if len(entries) != i+1 {
			t.Fatalf("request %d: expected %d ledger entries, got %d", i, i+1, len(entries))
		}
		if entries[i].StoryID != id || entries[i].Title != "title-"+id {
			t.Fatalf("request %d: unexpected ledger entry %+v", i, entries[i])
		}
	}
}

func TestExhaustionTriggersSingleFetch(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_storyapi.NewMockClient(ctrl)
	e, lib, led := newTestEngine(t, api)
	ctx := context.Background()

	seedLibrary(t, lib, "a")
	if err := led.AddEntries(ctx, []domain.HistoryEntry{
		{UserID: testUser, StoryID: "a", Title: "title-a"},
	}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	api.EXPECT().
		FetchStories(gomock.Any(), gomock.Any(), gomock.Any(), testUser).
		Return(&storyapi.FetchResult{
			Stories: []domain.Story{{StoryID: "b", Title: "title-b"}},
		}, nil).
		Times(1)

	if err := e.HandleNewStoryRequest(ctx, []string{"Легенды о любви"}, false); err != nil {
		t.Fatalf("request: %v", err)
	}

	current, ok := e.Current()
	if !ok || current.StoryID != "b" {
		t.Fatalf("expected fetched story to be presented, got %+v", current)
	}
}

func TestCoalescingSingleInFlightFetch(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_storyapi.NewMockClient(ctrl)
	e, _, _ := newTestEngine(t, api)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})

	api.EXPECT().
		FetchStories(gomock.Any(), gomock.Any(), gomock.Any(), testUser).
		DoAndReturn(func(context.Context, []string, []domain.HistoryEntry, string) (*storyapi.FetchResult, error) {
			close(started)
			<-release
			return &storyapi.FetchResult{
				Stories: []domain.Story{{StoryID: "s1", Title: "T"}},
			}, nil
		}).
		Times(1)

	done := make(chan error, 1)
	go func() {
		done <- e.HandleNewStoryRequest(ctx, nil, false)
	}()

	<-started

	// Second call while the first fetch is in flight must be ignored,
	// not queued.
	if err := e.HandleNewStoryRequest(ctx, nil, false); err != nil {
		t.Fatalf("coalesced request: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first request: %v", err)
	}

	current, ok := e.Current()
	if !ok || current.StoryID != "s1" {
		t.Fatalf("expected fetched story, got %+v", current)
	}
}

func TestBlockedRequestIsNoOp(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_storyapi.NewMockClient(ctrl)
	e, lib, led := newTestEngine(t, api)
	ctx := context.Background()

	seedLibrary(t, lib, "a")

	if err := e.HandleNewStoryRequest(ctx, nil, true); err != nil {
		t.Fatalf("blocked request: %v", err)
	}
	if _, ok := e.Current(); ok {
		t.Fatalf("blocked request must not present a story")
	}
	entries, _ := led.ListByUserID(ctx, testUser)
	if len(entries) != 0 {
		t.Fatalf("blocked request must not write the ledger")
	}
}

func TestFetchFailureKeepsCurrentStory(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_storyapi.NewMockClient(ctrl)
	e, lib, _ := newTestEngine(t, api)
	ctx := context.Background()

	seedLibrary(t, lib, "a")
	if _, err := e.SelectCurrentStory(ctx, ""); err != nil {
		t.Fatalf("select: %v", err)
	}

	api.EXPECT().
		FetchStories(gomock.Any(), gomock.Any(), gomock.Any(), testUser).
		Return(nil, errors.NewHTTP(http.StatusInternalServerError, "connection reset by peer")).
		Times(1)

	err := e.HandleNewStoryRequest(ctx, nil, false)
	if err == nil {
		t.Fatalf("expected error")
	}

	// Technical server text must not leak; the canned message is used.
	if got := errors.GetMessage(err); got != defaultMessage {
		t.Fatalf("expected canned message, got %q", got)
	}
	if errors.GetHTTPStatus(err) != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", errors.GetHTTPStatus(err))
	}

	// The previously displayed story survives the failed refresh.
	current, ok := e.Current()
	if !ok || current.StoryID != "a" {
		t.Fatalf("expected story a to remain current, got %+v", current)
	}

	all, _ := lib.All(ctx)
	if len(all) != 1 {
		t.Fatalf("failed fetch must not mutate the library")
	}
}

func TestUnauthorizedRoutesToReauth(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_storyapi.NewMockClient(ctrl)
	e, _, _ := newTestEngine(t, api)

	api.EXPECT().
		FetchStories(gomock.Any(), gomock.Any(), gomock.Any(), testUser).
		Return(nil, errors.NewHTTP(http.StatusUnauthorized, "token expired")).
		Times(1)

	err := e.HandleNewStoryRequest(context.Background(), nil, false)
	if err == nil {
		t.Fatalf("expected error")
	}
	if errors.GetCode(err) != CodeReauthRequired {
		t.Fatalf("expected reauth code, got %q", errors.GetCode(err))
	}
	if !errors.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized classification")
	}
}

func TestLocalizedServerMessageIsKept(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_storyapi.NewMockClient(ctrl)
	e, _, _ := newTestEngine(t, api)

	serverMessage := "Сервис временно недоступен"
	api.EXPECT().
		FetchStories(gomock.Any(), gomock.Any(), gomock.Any(), testUser).
		Return(nil, errors.NewHTTP(http.StatusBadGateway, serverMessage)).
		Times(1)

	err := e.HandleNewStoryRequest(context.Background(), nil, false)
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := errors.GetMessage(err); got != serverMessage {
		t.Fatalf("expected server message to pass through, got %q", got)
	}
}

func TestRederivesUnreadAfterMerge(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_storyapi.NewMockClient(ctrl)
	e, _, led := newTestEngine(t, api)
	ctx := context.Background()

	// The server claims to exclude viewed stories but returns one the
	// user has already seen; the engine must not trust batch order.
	if err := led.AddEntries(ctx, []domain.HistoryEntry{
		{UserID: testUser, StoryID: "seen", Title: "Seen"},
	}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	api.EXPECT().
		FetchStories(gomock.Any(), gomock.Any(), gomock.Any(), testUser).
		Return(&storyapi.FetchResult{
			Stories: []domain.Story{
				{StoryID: "seen", Title: "Seen"},
				{StoryID: "fresh", Title: "Fresh"},
			},
		}, nil).
		Times(1)

	if err := e.HandleNewStoryRequest(ctx, nil, false); err != nil {
		t.Fatalf("request: %v", err)
	}

	current, ok := e.Current()
	if !ok || current.StoryID != "fresh" {
		t.Fatalf("expected the unviewed story, got %+v", current)
	}
}

func TestRequestedStoryDoesNotTouchLedger(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_storyapi.NewMockClient(ctrl)
	e, lib, led := newTestEngine(t, api)
	ctx := context.Background()

	seedLibrary(t, lib, "a")

	story, err := e.SelectCurrentStory(ctx, "a")
	if err != nil {
		t.Fatalf("select by id: %v", err)
	}
	if story.StoryID != "a" {
		t.Fatalf("unexpected story %+v", story)
	}

	// Replaying from history is not a first view.
	entries, _ := led.ListByUserID(ctx, testUser)
	if len(entries) != 0 {
		t.Fatalf("history replay must not write the ledger")
	}
}

func TestRequestedStoryMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_storyapi.NewMockClient(ctrl)
	e, _, _ := newTestEngine(t, api)

	_, err := e.SelectCurrentStory(context.Background(), "missing")
	if err != engine.ErrStoryUnavailable {
		t.Fatalf("expected ErrStoryUnavailable, got %v", err)
	}
}

func TestSelectRecordsPresentation(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_storyapi.NewMockClient(ctrl)
	e, lib, led := newTestEngine(t, api)
	ctx := context.Background()

	seedLibrary(t, lib, "a", "b")

	story, err := e.SelectCurrentStory(ctx, "")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if story.StoryID != "a" {
		t.Fatalf("expected first unread story, got %+v", story)
	}

	entries, _ := led.ListByUserID(ctx, testUser)
	if len(entries) != 1 || entries[0].StoryID != "a" {
		t.Fatalf("expected presentation to be recorded, got %+v", entries)
	}
}

func TestExampleScenario(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_storyapi.NewMockClient(ctrl)
	e, lib, led := newTestEngine(t, api)
	ctx := context.Background()

	themes := []string{"Легенды о любви"}

	api.EXPECT().
		FetchStories(gomock.Any(), themes, gomock.Any(), testUser).
		DoAndReturn(func(_ context.Context, _ []string, viewed []domain.HistoryEntry, _ string) (*storyapi.FetchResult, error) {
			if len(viewed) != 0 {
				t.Fatalf("expected empty viewed list, got %+v", viewed)
			}
			return &storyapi.FetchResult{
				Stories: []domain.Story{{StoryID: "s1", Title: "T", Content: "C"}},
				History: []domain.HistoryEntry{},
			}, nil
		}).
		Times(1)

	if err := e.HandleNewStoryRequest(ctx, themes, false); err != nil {
		t.Fatalf("request: %v", err)
	}

	all, _ := lib.All(ctx)
	if len(all) != 1 || all[0].StoryID != "s1" {
		t.Fatalf("expected library [s1], got %+v", all)
	}

	entries, _ := led.ListByUserID(ctx, testUser)
	if len(entries) != 1 || entries[0].StoryID != "s1" || entries[0].Title != "T" {
		t.Fatalf("expected ledger entry for s1, got %+v", entries)
	}

	current, ok := e.Current()
	if !ok || current.Title != "T" {
		t.Fatalf("expected displayed title T, got %+v", current)
	}
}

func TestLoadStoryByIDMergesWithoutPresenting(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_storyapi.NewMockClient(ctrl)
	e, lib, led := newTestEngine(t, api)
	ctx := context.Background()

	api.EXPECT().
		LoadStoryByID(gomock.Any(), "s9").
		Return(&domain.Story{StoryID: "s9", Title: "Nine"}, nil).
		Times(1)

	story, err := e.LoadStoryByID(ctx, "s9")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if story.StoryID != "s9" {
		t.Fatalf("unexpected story %+v", story)
	}

	if _, err := lib.GetByStoryID(ctx, "s9"); err != nil {
		t.Fatalf("expected story merged into library: %v", err)
	}
	entries, _ := led.ListByUserID(ctx, testUser)
	if len(entries) != 0 {
		t.Fatalf("remote load must not mark the story viewed")
	}
	if _, ok := e.Current(); ok {
		t.Fatalf("remote load must not change the presented story")
	}
}

func TestLoadHistoryMergesLedger(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_storyapi.NewMockClient(ctrl)
	e, _, led := newTestEngine(t, api)
	ctx := context.Background()

	api.EXPECT().
		FetchHistoryByUserID(gomock.Any(), testUser).
		Return([]domain.HistoryEntry{
			{UserID: testUser, StoryID: "s1", Title: "One"},
			{UserID: testUser, StoryID: "s1", Title: "One-dup"},
		}, nil).
		Times(1)

	if err := e.LoadHistory(ctx); err != nil {
		t.Fatalf("load history: %v", err)
	}

	entries, _ := led.ListByUserID(ctx, testUser)
	if len(entries) != 1 {
		t.Fatalf("expected deduplicated history, got %+v", entries)
	}
}

func TestFetchedBatchWithNothingUnread(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_storyapi.NewMockClient(ctrl)
	e, _, led := newTestEngine(t, api)
	ctx := context.Background()

	if err := led.AddEntries(ctx, []domain.HistoryEntry{
		{UserID: testUser, StoryID: "seen", Title: "Seen"},
	}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	api.EXPECT().
		FetchStories(gomock.Any(), gomock.Any(), gomock.Any(), testUser).
		Return(&storyapi.FetchResult{
			Stories: []domain.Story{{StoryID: "seen", Title: "Seen"}},
		}, nil).
		Times(1)

	err := e.HandleNewStoryRequest(ctx, nil, false)
	if err == nil {
		t.Fatalf("expected error when batch holds nothing unread")
	}
	if !errors.Is(err, engine.ErrNoUnreadStories) {
		t.Fatalf("expected ErrNoUnreadStories, got %v", err)
	}

	// A follow-up request may fetch again; the flag must be cleared.
	api.EXPECT().
		FetchStories(gomock.Any(), gomock.Any(), gomock.Any(), testUser).
		Return(&storyapi.FetchResult{
			Stories: []domain.Story{{StoryID: "fresh", Title: "Fresh"}},
		}, nil).
		Times(1)
	if err := e.HandleNewStoryRequest(ctx, nil, false); err != nil {
		t.Fatalf("second request: %v", err)
	}
}

func TestRapidRequestsAreThrottled(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_storyapi.NewMockClient(ctrl)

	cfg := &config.Config{}
	cfg.Engine.DefaultErrorMessage = defaultMessage

	lib := library.NewMemoryRepository()
	led := ledger.NewMemoryRepository()
	e := New(Opts{
		LibraryRepo: lib,
		LedgerRepo:  led,
		StoryAPI:    api,
		Auth:        &stubAuth{session: domain.AuthSession{UserID: testUser, IsAuthenticated: true}},
		Taps:        ratelimit.NewInMemoryLimiter(1, time.Minute, 1),
		Logger:      logger.New(logger.Opts{}),
		Config:      cfg,
	})
	ctx := context.Background()

	seedLibrary(t, lib, "a", "b")

	if err := e.HandleNewStoryRequest(ctx, nil, false); err != nil {
		t.Fatalf("first request: %v", err)
	}
	current, _ := e.Current()
	if current.StoryID != "a" {
		t.Fatalf("expected first story, got %+v", current)
	}

	// A second tap inside the rate window is dropped silently.
	if err := e.HandleNewStoryRequest(ctx, nil, false); err != nil {
		t.Fatalf("throttled request: %v", err)
	}
	current, _ = e.Current()
	if current.StoryID != "a" {
		t.Fatalf("throttled request must not advance, got %+v", current)
	}
}

func TestSessionChangeDropsStaleCursor(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_storyapi.NewMockClient(ctrl)
	e, lib, led := newTestEngine(t, api)
	ctx := context.Background()

	seedLibrary(t, lib, "a", "b", "c")
	if err := e.HandleNewStoryRequest(ctx, nil, false); err != nil {
		t.Fatalf("first request: %v", err)
	}
	current, _ := e.Current()
	if current.StoryID != "a" {
		t.Fatalf("expected first story, got %+v", current)
	}

	// Logout as the auth manager performs it, then a new identity.
	if err := lib.Reset(ctx); err != nil {
		t.Fatalf("reset library: %v", err)
	}
	if err := led.Reset(ctx); err != nil {
		t.Fatalf("reset ledger: %v", err)
	}
	e.Auth.(*stubAuth).session = domain.AuthSession{UserID: "u2", IsAuthenticated: true}

	// The previous user's story must be gone.
	if _, ok := e.Current(); ok {
		t.Fatalf("previous session's story visible after identity change")
	}

	// No stale cursor to advance: the empty library forces a fetch for
	// the new user.
	api.EXPECT().
		FetchStories(gomock.Any(), gomock.Any(), gomock.Any(), "u2").
		Return(&storyapi.FetchResult{
			Stories: []domain.Story{{StoryID: "z", Title: "Z"}},
		}, nil).
		Times(1)

	if err := e.HandleNewStoryRequest(ctx, nil, false); err != nil {
		t.Fatalf("request after identity change: %v", err)
	}
	current, ok := e.Current()
	if !ok || current.StoryID != "z" {
		t.Fatalf("expected fetched story for the new user, got %+v", current)
	}

	entries, _ := led.ListByUserID(ctx, "u2")
	if len(entries) != 1 || entries[0].StoryID != "z" {
		t.Fatalf("unexpected ledger for new user: %+v", entries)
	}
}
