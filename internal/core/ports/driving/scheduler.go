package driving

import (
	"context"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

// Scheduler runs the pipeline periodically in serve mode.
type Scheduler interface {
	// Start begins running scheduled tasks.
	// Blocks until context is cancelled or an error occurs.
	Start(ctx context.Context) error

	// Stop gracefully stops all running tasks.
	Stop() error
}

// ScheduleHistory reads the persisted serve-mode schedule.
type ScheduleHistory interface {
	// Schedule returns the pipeline schedule, nil if it was never started,
	// and up to limit of its runs, newest first.
	Schedule(ctx context.Context, limit int) (*domain.ScheduleState, []domain.ScheduledRun, error)
}
