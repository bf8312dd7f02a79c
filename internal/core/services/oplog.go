package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
	"github.com/custodia-labs/listsync/internal/core/ports/driving"
	"github.com/custodia-labs/listsync/internal/logger"
)

// Ensure OperationsLog implements the interface.
var _ driving.RunHistory = (*OperationsLog)(nil)

// OperationsLog records one immutable audit entry per pipeline stage.
// Failures to write the log are reported but never change the run outcome.
type OperationsLog struct {
	store driven.OperationsLogStore
	now   func() time.Time
}

// NewOperationsLog creates an operations log over store.
func NewOperationsLog(store driven.OperationsLogStore) *OperationsLog {
	return &OperationsLog{store: store, now: time.Now}
}

// StageRun is an open log entry returned by Start.
type StageRun struct {
	log     *OperationsLog
	runID   string
	stage   domain.Stage
	started time.Time
	took    time.Duration
	timed   bool
}

// Start opens an entry for stage within run runID.
func (l *OperationsLog) Start(runID string, stage domain.Stage) *StageRun {
	return &StageRun{log: l, runID: runID, stage: stage, started: l.now()}
}

// Took sets the stage's own working time for stages that share wall-clock
// time with another, such as fetch and upsert. Finish then records
// started+d instead of the current time.
func (r *StageRun) Took(d time.Duration) *StageRun {
	r.took, r.timed = d, true
	return r
}

// Finish appends the entry. cause, if non-nil, becomes the error summary.
func (r *StageRun) Finish(ctx context.Context, status domain.RunStatus, counts domain.Counts, cause error) *domain.OperationLogEntry {
	finished := r.log.now()
	if r.timed {
		finished = r.started.Add(r.took)
	}
	entry := &domain.OperationLogEntry{
		RunID:      r.runID,
		Stage:      r.stage,
		StartedAt:  r.started,
		FinishedAt: finished,
		Status:     status,
		Counts:     counts,
	}
	if cause != nil {
		entry.ErrorSummary = cause.Error()
	}

	logger.L().Info("stage finished",
		zap.String("run_id", entry.RunID),
		zap.String("stage", string(entry.Stage)),
		zap.String("status", string(entry.Status)),
		zap.Duration("duration", entry.Duration()),
		zap.Int("created", counts.Created),
		zap.Int("updated", counts.Updated),
		zap.Int("deleted", counts.Deleted),
		zap.Int("skipped", counts.Skipped),
		zap.Int("errored", counts.Errored),
	)

	if err := r.log.store.Append(context.WithoutCancel(ctx), entry); err != nil {
		logger.Warn("Writing operations log for %s/%s: %v", r.runID, r.stage, err)
	}
	return entry
}

// Recent returns the latest entries, most recent first.
func (l *OperationsLog) Recent(ctx context.Context, limit int) ([]domain.OperationLogEntry, error) {
	return l.store.Recent(ctx, limit)
}
