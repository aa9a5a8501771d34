package auth

import (
	"context"
	"errors"

	"github.com/skazkalab/fairytale-engine/internal/domain"
)

var ErrNotAuthenticated = errors.New("not authenticated")

//go:generate go run go.uber.org/mock/mockgen -source=auth.go -destination=mocks/mock.go

// Manager owns the AuthSession and drives the token lifecycle:
// LoggedOut -> LoggedIn -> (expired) Refreshing -> LoggedIn, or
// LoggedOut when the refresh exchange fails. All other components read
// session copies only.
type Manager interface {
	// LoginWithGoogle exchanges identity-provider tokens for a backend
	// session. Library and ledger are wholesale-reset before the new
	// session is installed so content never leaks across identities.
	LoginWithGoogle(ctx context.Context, idToken, accessToken string) (domain.AuthSession, error)

	// CheckTokenExpiry decodes the stored access token's exp claim and
	// refreshes it when expired. A refresh or decode failure forces a
	// full logout. Returns a currently valid access token.
	CheckTokenExpiry(ctx context.Context) (string, error)

	// Logout clears credentials, the session, and all user-scoped state.
	// Safe to call repeatedly.
	Logout(ctx context.Context) error

	// Session returns a read-only copy of the current session.
	Session() domain.AuthSession

	// AccessToken implements the bearer-token source for the API clients.
	AccessToken() string

	// ScheduleExpiryCheck runs CheckTokenExpiry periodically until the
	// context is cancelled.
	ScheduleExpiryCheck(ctx context.Context) error
}
