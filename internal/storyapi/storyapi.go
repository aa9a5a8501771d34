package storyapi

import (
	"context"

	"github.com/skazkalab/fairytale-engine/internal/domain"
)

//go:generate go run go.uber.org/mock/mockgen -source=storyapi.go -destination=mocks/mock.go

// TokenSource supplies the bearer token attached to every request.
// Implemented by the token lifecycle manager.
type TokenSource interface {
	AccessToken() string
}

// FetchResult is a replenishment batch. The server is expected to skip
// stories listed in the request's viewed set, but callers must not rely
// on that: exclusion is advisory only.
type FetchResult struct {
	Stories []domain.Story
	History []domain.HistoryEntry
}

// Client talks to the backend story endpoints over authenticated HTTP.
type Client interface {
	FetchStories(ctx context.Context, themes []string, viewed []domain.HistoryEntry, userID string) (*FetchResult, error)
	LoadStoryByID(ctx context.Context, storyID string) (*domain.Story, error)
	FetchHistoryByUserID(ctx context.Context, userID string) ([]domain.HistoryEntry, error)
}
