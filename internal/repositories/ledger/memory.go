package ledger

import (
	"context"
	"sync"

	"github.com/skazkalab/fairytale-engine/internal/domain"
)

type pairKey struct {
	userID  string
	storyID string
}

// MemoryRepository keeps the ledger in process memory, insertion order
// preserved. Cleared wholesale on logout, never evicted otherwise.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []domain.HistoryEntry
	seen    map[pairKey]struct{}
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		seen: make(map[pairKey]struct{}),
	}
}

var _ Repository = (*MemoryRepository)(nil)

// AddEntries inserts each entry unless the (UserID, StoryID) pair is
// already recorded. Duplicates are silently rejected, not overwritten.
func (r *MemoryRepository) AddEntries(ctx context.Context, batch []domain.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range batch {
		if entry.StoryID == "" {
			continue
		}
		key := pairKey{userID: entry.UserID, storyID: entry.StoryID}
		if _, exists := r.seen[key]; exists {
			continue
		}
		r.seen[key] = struct{}{}
		r.entries = append(r.entries, entry)
	}
	return nil
}

func (r *MemoryRepository) ListByUserID(ctx context.Context, userID string) ([]domain.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.HistoryEntry
	for _, entry := range r.entries {
		if entry.UserID == userID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = nil
	r.seen = make(map[pairKey]struct{})
	return nil
}
