package library

import (
	"context"
	"errors"

	"github.com/skazkalab/fairytale-engine/internal/domain"
)

var ErrNotFound = errors.New("story not found")

//go:generate go run go.uber.org/mock/mockgen -source=library.go -destination=mocks/mock.go

// Repository is the session-scoped story library: every story fetched
// this session, keyed by StoryID, in fetch-arrival order. Append-only;
// Reset is reserved for the token lifecycle manager on logout.
type Repository interface {
	AddStories(ctx context.Context, batch []domain.Story) error
	GetByStoryID(ctx context.Context, storyID string) (*domain.Story, error)
	All(ctx context.Context) ([]domain.Story, error)
	Reset(ctx context.Context) error
}
