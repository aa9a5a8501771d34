package ledger

import (
	"context"

	"github.com/skazkalab/fairytale-engine/internal/domain"
)

//go:generate go run go.uber.org/mock/mockgen -source=ledger.go -destination=mocks/mock.go

// Repository is the viewed-history ledger: which stories a user has
// already been shown this session. Append-only, deduplicated on the
// (UserID, StoryID) pair; Reset is reserved for logout.
type Repository interface {
	AddEntries(ctx context.Context, batch []domain.HistoryEntry) error
	ListByUserID(ctx context.Context, userID string) ([]domain.HistoryEntry, error)
	Reset(ctx context.Context) error
}
