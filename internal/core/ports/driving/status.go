package driving

import (
	"context"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

// StatusService reports pipeline state for operators and health checks.
type StatusService interface {
	Status(ctx context.Context) (*StatusReport, error)
}

// StatusReport is a point-in-time view of the pipeline.
type StatusReport struct {
	SyncState         *domain.SyncState
	Lease             *domain.Lease
	Raw               domain.RawStats
	Processed         domain.ProcessedStats
	DictionaryVersion int64
	DictionarySize    int
	RecentRuns        []domain.OperationLogEntry
}

// RunHistory lists operations log entries.
type RunHistory interface {
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]domain.OperationLogEntry, error)
}
