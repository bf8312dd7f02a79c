package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

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
	var status string
	var lastRun, lastSuccess, nextRun *time.Time

	err := s.store.pool.QueryRow(ctx, `
		SELECT name, interval_seconds, COALESCE(last_run_id, ''), last_run, COALESCE(last_status, ''),
			COALESCE(last_error, ''), last_success, next_run, failures
		FROM schedules WHERE name = $1
	`, name).Scan(&state.Name, &intervalSeconds, &state.LastRunID, &lastRun, &status,
		&state.LastError, &lastSuccess, &nextRun, &state.Failures)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning schedule: %w", err)
	}

	state.Interval = time.Duration(intervalSeconds) * time.Second
	state.LastRun = fromNullTime(lastRun)
	state.LastStatus = domain.RunStatus(status)
	state.LastSuccess = fromNullTime(lastSuccess)
	state.NextRun = fromNullTime(nextRun)
	return &state, nil
}

// SaveSchedule creates or replaces the schedule's state.
func (s *schedulerStore) SaveSchedule(ctx context.Context, state *domain.ScheduleState) error {
	if state == nil || state.Name == "" {
		return domain.ErrInvalidInput
	}
	_, err := s.store.pool.Exec(ctx, `
		INSERT INTO schedules (name, interval_seconds, last_run_id, last_run, last_status,
			last_error, last_success, next_run, failures)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (name) DO UPDATE SET
			interval_seconds = EXCLUDED.interval_seconds,
			last_run_id = EXCLUDED.last_run_id,
			last_run = EXCLUDED.last_run,
			last_status = EXCLUDED.last_status,
			last_error = EXCLUDED.last_error,
			last_success = EXCLUDED.last_success,
			next_run = EXCLUDED.next_run,
			failures = EXCLUDED.failures
	`, state.Name, int64(state.Interval.Seconds()), nullString(state.LastRunID), nullTime(state.LastRun),
		nullString(string(state.LastStatus)), nullString(state.LastError), nullTime(state.LastSuccess),
		nullTime(state.NextRun), state.Failures)
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
	_, err := s.store.pool.Exec(ctx, `
		INSERT INTO scheduled_runs (schedule, run_id, started_at, finished_at, status, mutations, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.Schedule, nullString(run.RunID), run.StartedAt.UTC(), run.FinishedAt.UTC(),
		string(run.Status), run.Mutations, nullString(run.Error))
	if err != nil {
		return fmt.Errorf("recording scheduled run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *schedulerStore) RecentRuns(ctx context.Context, name string, limit int) ([]domain.ScheduledRun, error) {
	rows, err := s.store.pool.Query(ctx, `
		SELECT schedule, COALESCE(run_id, ''), started_at, finished_at, status, mutations, COALESCE(error, '')
		FROM scheduled_runs
		WHERE schedule = $1
		ORDER BY id DESC
		LIMIT $2
	`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("querying scheduled runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ScheduledRun, error) {
		var r domain.ScheduledRun
		var status string
		err := row.Scan(&r.Schedule, &r.RunID, &r.StartedAt, &r.FinishedAt, &status, &r.Mutations, &r.Error)
		r.Status = domain.RunStatus(status)
		r.StartedAt = r.StartedAt.UTC()
		r.FinishedAt = r.FinishedAt.UTC()
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning scheduled runs: %w", err)
	}
	return runs, nil
}

// PruneRuns keeps the newest keep runs of the schedule.
func (s *schedulerStore) PruneRuns(ctx context.Context, name string, keep int) error {
	_, err := s.store.pool.Exec(ctx, `
		DELETE FROM scheduled_runs
		WHERE schedule = $1 AND id NOT IN (
			SELECT id FROM scheduled_runs WHERE schedule = $1 ORDER BY id DESC LIMIT $2
		)
	`, name, keep)
	if err != nil {
		return fmt.Errorf("pruning scheduled runs: %w", err)
	}
	return nil
}
