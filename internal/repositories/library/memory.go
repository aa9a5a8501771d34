package library

import (
	"context"
	"sync"

	"github.com/skazkalab/fairytale-engine/internal/domain"
)

// MemoryRepository holds the library in process memory. No eviction:
// the collection only grows until Reset. Offline persistence is an
// explicit non-goal for this engine.
type MemoryRepository struct {
	mu      sync.RWMutex
	stories []domain.Story
	index   map[string]int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		index: make(map[string]int),
	}
}

var _ Repository = (*MemoryRepository)(nil)

// AddStories inserts each story whose StoryID is not present yet.
// First write wins; later duplicates are dropped, not merged.
func (r *MemoryRepository) AddStories(ctx context.Context, batch []domain.Story) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, story := range batch {
		if story.StoryID == "" {
			continue
		}
		if _, exists := r.index[story.StoryID]; exists {
			continue
		}
		r.index[story.StoryID] = len(r.stories)
		r.stories = append(r.stories, story)
	}
	return nil
}

func (r *MemoryRepository) GetByStoryID(ctx context.Context, storyID string) (*domain.Story, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[storyID]
	if !ok {
		return nil, ErrNotFound
	}
	story := r.stories[i]
	return &story, nil
}

// All returns the stories in insertion order.
func (r *MemoryRepository) All(ctx context.Context) ([]domain.Story, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Story, len(r.stories))
	copy(out, r.stories)
	return out, nil
}

func (r *MemoryRepository) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.stories = nil
	r.index = make(map[string]int)
	return nil
}
