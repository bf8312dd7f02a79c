package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
)

// schedulerStore implements driven.SchedulerStore.
type schedulerStore struct {
	store *Store
}

var _ driven.SchedulerStore = (*schedulerStore)(nil)

// GetSchedule returns nil and no error if the schedule was never saved.
func (s *schedulerStore) GetSchedule(ctx context.Context, name string) (*domain.ScheduleState, error) {
	var state domain.ScheduleState
	var intervalSeconds int64
	var runID, lastRun, status, lastErr, lastSuccess, nextRun sql.NullString

	err := s.store.db.QueryRowContext(ctx, `
		SELECT name, interval_seconds, last_run_id, last_run, last_status,
			last_error, last_success, next_run, failures
		FROM schedules WHERE name = ?
	`, name).Scan(&state.Name, &intervalSeconds, &runID, &lastRun, &status,
		&lastErr, &lastSuccess, &nextRun, &state.Failures)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning schedule: %w", err)
	}

	state.Interval = time.Duration(intervalSeconds) * time.Second
	state.LastRunID = runID.String
	state.LastRun = parseNullableTime(lastRun)
	state.LastStatus = domain.RunStatus(status.String)
	state.LastError = lastErr.String
	state.LastSuccess = parseNullableTime(lastSuccess)
	state.NextRun = parseNullableTime(nextRun)
	return &state, nil
}

// SaveSchedule creates or replaces the schedule's state.
func (s *schedulerStore) SaveSchedule(ctx context.Context, state *domain.ScheduleState) error {
	if state == nil || state.Name == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO schedules (name, interval_seconds, last_run_id, last_run, last_status,
			last_error, last_success, next_run, failures)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			interval_seconds = excluded.interval_seconds,
			last_run_id = excluded.last_run_id,
			last_run = excluded.last_run,
			last_status = excluded.last_status,
			last_error = excluded.last_error,
			last_success = excluded.last_success,
			next_run = excluded.next_run,
			failures = excluded.failures
	`, state.Name, int64(state.Interval.Seconds()), nullString(state.LastRunID),
		formatNullableTime(state.LastRun), nullString(string(state.LastStatus)),
		nullString(state.LastError), formatNullableTime(state.LastSuccess),
		formatNullableTime(state.NextRun), state.Failures)
	if err != nil {
		return fmt.Errorf("saving schedule: %w", err)
	}
	return nil
}

// RecordRun appends one run to the schedule's history.
func (s *schedulerStore) RecordRun(ctx context.Context, run *domain.ScheduledRun) error {
	if run == nil || run.Schedule == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO scheduled_runs (schedule, run_id, started_at, finished_at, status, mutations, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.Schedule, nullString(run.RunID), formatTime(run.StartedAt), formatTime(run.FinishedAt),
		string(run.Status), run.Mutations, nullString(run.Error))
	if err != nil {
		return fmt.Errorf("recording scheduled run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *schedulerStore) RecentRuns(ctx context.Context, name string, limit int) ([]domain.ScheduledRun, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT schedule, run_id, started_at, finished_at, status, mutations, error
		FROM scheduled_runs
		WHERE schedule = ?
		ORDER BY id DESC
		LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("querying scheduled runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.ScheduledRun //nolint:prealloc // size unknown from query
	for rows.Next() {
		var run domain.ScheduledRun
		var runID, errMsg sql.NullString
		var startedAt, finishedAt, status string
		if err := rows.Scan(&run.Schedule, &runID, &startedAt, &finishedAt,
			&status, &run.Mutations, &errMsg); err != nil {
			return nil, fmt.Errorf("scanning scheduled run: %w", err)
		}
		run.RunID = runID.String
		run.StartedAt = parseTime(startedAt)
		run.FinishedAt = parseTime(finishedAt)
		run.Status = domain.RunStatus(status)
		run.Error = errMsg.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scheduled runs: %w", err)
	}
	return runs, nil
}

// PruneRuns keeps the newest keep runs of the schedule.
func (s *schedulerStore) PruneRuns(ctx context.Context, name string, keep int) error {
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM scheduled_runs
		WHERE schedule = ? AND id NOT IN (
			SELECT id FROM scheduled_runs WHERE schedule = ? ORDER BY id DESC LIMIT ?
		)
	`, name, name, keep)
	if err != nil {
		return fmt.Errorf("pruning scheduled runs: %w", err)
	}
	return nil
}
