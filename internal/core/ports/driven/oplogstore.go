package driven

import (
	"context"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

// OperationsLogStore is the append-only audit table.
type OperationsLogStore interface {
	// Append stores an entry and sets its ID.
	Append(ctx context.Context, entry *domain.OperationLogEntry) error

	// Recent returns the latest entries, most recent first.
	Recent(ctx context.Context, limit int) ([]domain.OperationLogEntry, error)

	// ByRun returns the entries of one run in stage order.
	ByRun(ctx context.Context, runID string) ([]domain.OperationLogEntry, error)
}
