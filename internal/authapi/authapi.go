package authapi

import (
	"context"
)

//go:generate go run go.uber.org/mock/mockgen -source=authapi.go -destination=mocks/mock.go

// LoginResult is the backend's answer to a successful identity exchange.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	Email        string
}

// Client talks to the backend auth endpoints. The identity-provider SDK
// itself is out of scope; only its tokens pass through here.
type Client interface {
	// GoogleLogin exchanges provider tokens for a backend session.
	GoogleLogin(ctx context.Context, idToken, accessToken string) (*LoginResult, error)
	// Refresh exchanges the refresh token for a new access token. With
	// the cookie-based backend variant refreshToken is ignored and the
	// request body is empty.
	Refresh(ctx context.Context, refreshToken string) (string, error)
}
