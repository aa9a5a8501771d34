package authimpl

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/skazkalab/fairytale-engine/internal/auth"
	"github.com/skazkalab/fairytale-engine/internal/authapi"
	mock_authapi "github.com/skazkalab/fairytale-engine/internal/authapi/mocks"
	"github.com/skazkalab/fairytale-engine/internal/config"
	"github.com/skazkalab/fairytale-engine/internal/credentials"
	"github.com/skazkalab/fairytale-engine/internal/domain"
	"github.com/skazkalab/fairytale-engine/internal/repositories/ledger"
	"github.com/skazkalab/fairytale-engine/internal/repositories/library"
	"github.com/skazkalab/fairytale-engine/pkg/logger"
	"go.uber.org/mock/gomock"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

type fixture struct {
	manager *AuthImpl
	api     *mock_authapi.MockClient
	creds   credentials.Store
	lib     library.Repository
	led     ledger.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	cfg := &config.Config{}
	cfg.Auth.CredentialsPath = filepath.Join(t.TempDir(), "creds.bin")
	cfg.Auth.CheckInterval = time.Minute
	cfg.API.Timeout = time.Second

	log := logger.New(logger.Opts{})
	store, err := credentials.NewFileStore(credentials.FileStoreOpts{
		Config: cfg,
		Logger: log,
	})
	if err != nil {
		t.Fatalf("file store: %v", err)
	}

	api := mock_authapi.NewMockClient(ctrl)
	lib := library.NewMemoryRepository()
	led := ledger.NewMemoryRepository()

	manager := New(Opts{
		Credentials: store,
		AuthAPI:     api,
		LibraryRepo: lib,
		LedgerRepo:  led,
		Logger:      log,
		Config:      cfg,
	})

	return &fixture{manager: manager, api: api, creds: store, lib: lib, led: led}
}

func TestCheckTokenExpiryValidToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	access := signedToken(t, time.Now().Add(time.Hour))
	if err := f.creds.Save(ctx, access, "refresh-1"); err != nil {
		t.Fatalf("save: %v", err)
	}

	token, err := f.manager.CheckTokenExpiry(ctx)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if token != access {
		t.Fatalf("expected the stored token back, got %q", token)
	}
}

func TestCheckTokenExpiryRefreshSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expired := signedToken(t, time.Now().Add(-time.Hour))
	if err := f.creds.Save(ctx, expired, "refresh-1"); err != nil {
		t.Fatalf("save: %v", err)
	}

	fresh := signedToken(t, time.Now().Add(time.Hour))
	f.api.EXPECT().Refresh(gomock.Any(), "refresh-1").Return(fresh, nil).Times(1)

	token, err := f.manager.CheckTokenExpiry(ctx)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if token != fresh {
		t.Fatalf("expected refreshed token, got %q", token)
	}

	// The new access token is persisted in place, the refresh token is
	// untouched, and no logout happened.
	stored, err := f.creds.Load(ctx)
	if err != nil {
		t.Fatalf("load after refresh: %v", err)
	}
	if stored.AccessToken != fresh || stored.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected stored credentials: %+v", stored)
	}
}

func TestCheckTokenExpiryRefreshFailureForcesLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expired := signedToken(t, time.Now().Add(-time.Hour))
	if err := f.creds.Save(ctx, expired, "refresh-1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := f.lib.AddStories(ctx, []domain.Story{{StoryID: "s1"}}); err != nil {
		t.Fatalf("seed library: %v", err)
	}

	f.api.EXPECT().Refresh(gomock.Any(), "refresh-1").
		Return("", errors.New("invalid refresh token")).
		Times(1)

	if _, err := f.manager.CheckTokenExpiry(ctx); err == nil {
		t.Fatalf("expected error")
	}

	if _, err := f.creds.Load(ctx); err != credentials.ErrNotFound {
		t.Fatalf("expected cleared credentials, got %v", err)
	}
	if f.manager.Session().IsAuthenticated {
		t.Fatalf("expected logged-out session")
	}
	all, _ := f.lib.All(ctx)
	if len(all) != 0 {
		t.Fatalf("expected library reset on forced logout")
	}
}

func TestCheckTokenExpiryUndecodableTokenForcesLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.creds.Save(ctx, "not-a-jwt", "refresh-1"); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := f.manager.CheckTokenExpiry(ctx); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := f.creds.Load(ctx); err != credentials.ErrNotFound {
		t.Fatalf("expected cleared credentials, got %v", err)
	}
}

func TestCheckTokenExpiryWithoutCredentials(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.CheckTokenExpiry(context.Background())
	if !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestLoginResetsUserScopedState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Content left over from a previous identity.
	if err := f.lib.AddStories(ctx, []domain.Story{{StoryID: "old"}}); err != nil {
		t.Fatalf("seed library: %v", err)
	}
	if err := f.led.AddEntries(ctx, []domain.HistoryEntry{
		{UserID: "u1", StoryID: "old"},
	}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	f.api.EXPECT().GoogleLogin(gomock.Any(), "id-token", "provider-access").
		Return(&authapi.LoginResult{
			AccessToken:  signedToken(t, time.Now().Add(time.Hour)),
			RefreshToken: "refresh-2",
			UserID:       "u2",
			Email:        "u2@example.com",
		}, nil).
		Times(1)

	session, err := f.manager.LoginWithGoogle(ctx, "id-token", "provider-access")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !session.IsAuthenticated || session.UserID != "u2" {
		t.Fatalf("unexpected session %+v", session)
	}

	all, _ := f.lib.All(ctx)
	if len(all) != 0 {
		t.Fatalf("library must be empty before u2 sees any story")
	}
	entries, _ := f.led.ListByUserID(ctx, "u1")
	if len(entries) != 0 {
		t.Fatalf("ledger must be empty before u2 sees any story")
	}

	stored, err := f.creds.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.RefreshToken != "refresh-2" {
		t.Fatalf("expected persisted refresh token, got %+v", stored)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.manager.Logout(ctx); err != nil {
		t.Fatalf("logout on empty state: %v", err)
	}
	if err := f.manager.Logout(ctx); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}

func TestAccessTokenFollowsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if f.manager.AccessToken() != "" {
		t.Fatalf("expected empty token before login")
	}

	access := signedToken(t, time.Now().Add(time.Hour))
	f.api.EXPECT().GoogleLogin(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&authapi.LoginResult{
			AccessToken:  access,
			RefreshToken: "r",
			UserID:       "u1",
		}, nil).
		Times(1)

	if _, err := f.manager.LoginWithGoogle(ctx, "i", "a"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if f.manager.AccessToken() != access {
		t.Fatalf("expected session access token")
	}

	if err := f.manager.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if f.manager.AccessToken() != "" {
		t.Fatalf("expected empty token after logout")
	}
}
