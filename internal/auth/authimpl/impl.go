package authimpl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/skazkalab/fairytale-engine/internal/auth"
	"github.com/skazkalab/fairytale-engine/internal/authapi"
	"github.com/skazkalab/fairytale-engine/internal/config"
	"github.com/skazkalab/fairytale-engine/internal/credentials"
	"github.com/skazkalab/fairytale-engine/internal/domain"
	"github.com/skazkalab/fairytale-engine/internal/repositories/ledger"
	"github.com/skazkalab/fairytale-engine/internal/repositories/library"
	"github.com/skazkalab/fairytale-engine/pkg/errors"
	"github.com/skazkalab/fairytale-engine/pkg/logger"
	"go.uber.org/fx"
)

type AuthImpl struct {
	mu      sync.RWMutex
	session domain.AuthSession

	Credentials credentials.Store
	AuthAPI     authapi.Client
	LibraryRepo library.Repository
	LedgerRepo  ledger.Repository
	Logger      logger.Logger
	Config      *config.Config

	now func() time.Time
}

type Opts struct {
	fx.In

	Credentials credentials.Store
	AuthAPI     authapi.Client
	LibraryRepo library.Repository
	LedgerRepo  ledger.Repository
	Logger      logger.Logger
	Config      *config.Config
}

func New(opts Opts) *AuthImpl {
	return &AuthImpl{
		Credentials: opts.Credentials,
		AuthAPI:     opts.AuthAPI,
		LibraryRepo: opts.LibraryRepo,
		LedgerRepo:  opts.LedgerRepo,
		Logger:      opts.Logger,
		Config:      opts.Config,
		now:         time.Now,
	}
}

var _ auth.Manager = (*AuthImpl)(nil)

func (a *AuthImpl) LoginWithGoogle(ctx context.Context, idToken, accessToken string) (domain.AuthSession, error) {
	result, err := a.AuthAPI.GoogleLogin(ctx, idToken, accessToken)
	if err != nil {
		return domain.AuthSession{}, errors.Wrap(err, "google login failed")
	}

	// User-scoped state from a previous identity must not survive the
	// new login.
	if err := a.resetUserState(ctx); err != nil {
		return domain.AuthSession{}, err
	}

	if err := a.Credentials.Save(ctx, result.AccessToken, result.RefreshToken); err != nil {
		return domain.AuthSession{}, errors.Wrap(err, "failed to persist credentials")
	}

	session := domain.AuthSession{
		AccessToken:     result.AccessToken,
		RefreshToken:    result.RefreshToken,
		UserID:          result.UserID,
		Email:           result.Email,
		IsAuthenticated: true,
	}

	a.mu.Lock()
	a.session = session
	a.mu.Unlock()

	a.Logger.Info("User logged in", "user_id", result.UserID)
	return session, nil
}

func (a *AuthImpl) CheckTokenExpiry(ctx context.Context) (string, error) {
	creds, err := a.Credentials.Load(ctx)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			a.Logger.Warn("No stored credentials during expiry check")
			return "", auth.ErrNotAuthenticated
		}
		return "", errors.Wrap(err, "failed to load credentials")
	}

	expired, err := a.tokenExpired(creds.AccessToken)
	if err != nil {
		// An undecodable token cannot be trusted; drop the session.
		a.Logger.Error("Failed to decode access token, logging out", "error", err)
		if logoutErr := a.Logout(ctx); logoutErr != nil {
			a.Logger.Error("Logout after decode failure also failed", "error", logoutErr)
		}
		return "", errors.Wrap(err, "access token decode failed")
	}

	if !expired {
		return creds.AccessToken, nil
	}

	a.Logger.Info("Access token expired, refreshing")
	return a.refreshAccessToken(ctx, creds)
}

// refreshAccessToken exchanges the refresh token for a new access token
// and persists it in place; the refresh token itself is untouched. Any
// failure forces a full logout.
func (a *AuthImpl) refreshAccessToken(ctx context.Context, creds *domain.Credentials) (string, error) {
	newAccess, err := a.AuthAPI.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		a.Logger.Error("Token refresh failed, logging out", "error", err)
		if logoutErr := a.Logout(ctx); logoutErr != nil {
			a.Logger.Error("Logout after refresh failure also failed", "error", logoutErr)
		}
		return "", errors.Wrap(err, "token refresh failed")
	}

	if err := a.Credentials.Save(ctx, newAccess, creds.RefreshToken); err != nil {
		return "", errors.Wrap(err, "failed to persist refreshed token")
	}

	a.mu.Lock()
	if a.session.IsAuthenticated {
		a.session.AccessToken = newAccess
	}
	a.mu.Unlock()

	a.Logger.Info("Access token refreshed")
	return newAccess, nil
}

// tokenExpired decodes the exp claim without verifying the signature.
// Verification happens server-side on every authenticated call; the
// client only needs the expiry hint.
func (a *AuthImpl) tokenExpired(accessToken string) (bool, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return false, fmt.Errorf("failed to parse access token: %w", err)
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil {
		return false, fmt.Errorf("failed to read exp claim: %w", err)
	}
	if exp == nil {
		// No expiry claim means the token never goes stale client-side.
		return false, nil
	}

	return exp.Time.Before(a.now()), nil
}

func (a *AuthImpl) Logout(ctx context.Context) error {
	if err := a.Credentials.Clear(ctx); err != nil {
		return errors.Wrap(err, "failed to clear credentials")
	}
	if err := a.resetUserState(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	a.session = domain.AuthSession{}
	a.mu.Unlock()

	a.Logger.Info("User logged out")
	return nil
}

func (a *AuthImpl) resetUserState(ctx context.Context) error {
	if err := a.LibraryRepo.Reset(ctx); err != nil {
		return errors.Wrap(err, "failed to reset library")
	}
	if err := a.LedgerRepo.Reset(ctx); err != nil {
		return errors.Wrap(err, "failed to reset ledger")
	}
	return nil
}

func (a *AuthImpl) Session() domain.AuthSession {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

func (a *AuthImpl) AccessToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session.AccessToken
}

// ScheduleExpiryCheck drives CheckTokenExpiry on a fixed interval, the
// long-running analog of checking on screen mount.
func (a *AuthImpl) ScheduleExpiryCheck(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create expiry scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(a.Config.Auth.CheckInterval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				a.Logger.Info("Context cancelled, stopping token expiry checks")
				return
			}

			checkCtx, cancel := context.WithTimeout(ctx, a.Config.API.Timeout)
			defer cancel()

			if _, err := a.CheckTokenExpiry(checkCtx); err != nil && !errors.Is(err, auth.ErrNotAuthenticated) {
				a.Logger.Warn("Scheduled token expiry check failed", "error", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule token expiry check: %w", err)
	}

	scheduler.Start()

	go func() {
		<-ctx.Done()
		a.Logger.Info("Stopping token expiry scheduler")
		if err := scheduler.Shutdown(); err != nil {
			a.Logger.Error("Failed to shut down expiry scheduler", "error", err)
		}
	}()

	return nil
}
