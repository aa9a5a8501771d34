package credentials

import (
	"context"
	"errors"

	"github.com/skazkalab/fairytale-engine/internal/domain"
)

var ErrNotFound = errors.New("credentials not found")
var ErrCannotSave = errors.New("error saving credentials")

//go:generate go run go.uber.org/mock/mockgen -source=credentials.go -destination=mocks/mock.go

// Store persists the access/refresh token pair across restarts. Token
// contents are opaque; no validation happens here.
type Store interface {
	Save(ctx context.Context, accessToken, refreshToken string) error
	Load(ctx context.Context) (*domain.Credentials, error)
	Clear(ctx context.Context) error
}
