package driven

import (
	"context"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

// SchedulerStore persists serve-mode schedules and their run history.
type SchedulerStore interface {
	// GetSchedule returns nil and no error if the schedule was never saved.
	GetSchedule(ctx context.Context, name string) (*domain.ScheduleState, error)

	// SaveSchedule creates or replaces the schedule's state.
	SaveSchedule(ctx context.Context, state *domain.ScheduleState) error

	// RecordRun appends one run to the schedule's history.
	RecordRun(ctx context.Context, run *domain.ScheduledRun) error

	// RecentRuns returns up to limit runs, newest first.
	RecentRuns(ctx context.Context, name string, limit int) ([]domain.ScheduledRun, error)

	// PruneRuns keeps the newest keep runs of the schedule.
	PruneRuns(ctx context.Context, name string, keep int) error
}
