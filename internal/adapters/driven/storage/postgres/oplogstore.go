package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
)

// oplogStore implements driven.OperationsLogStore.
type oplogStore struct {
	store *Store
}

var _ driven.OperationsLogStore = (*oplogStore)(nil)

const oplogColumns = `id, run_id, stage, started_at, finished_at, status,
	created, updated, deleted, skipped, errored, COALESCE(error_summary, '')`

// Append stores an entry and sets its ID.
func (o *oplogStore) Append(ctx context.Context, entry *domain.OperationLogEntry) error {
	if entry == nil {
		return domain.ErrInvalidInput
	}
	err := o.store.pool.QueryRow(ctx, `
		INSERT INTO operations_log (run_id, stage, started_at, finished_at, status,
			created, updated, deleted, skipped, errored, error_summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, entry.RunID, string(entry.Stage), entry.StartedAt.UTC(), entry.FinishedAt.UTC(), string(entry.Status),
		entry.Counts.Created, entry.Counts.Updated, entry.Counts.Deleted, entry.Counts.Skipped,
		entry.Counts.Errored, nullString(entry.ErrorSummary)).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("appending operations log entry: %w", err)
	}
	return nil
}

// Recent returns the latest entries, most recent first.
func (o *oplogStore) Recent(ctx context.Context, limit int) ([]domain.OperationLogEntry, error) {
	if limit <= 0 {
		return o.query(ctx, "SELECT "+oplogColumns+" FROM operations_log ORDER BY id DESC")
	}
	return o.query(ctx, "SELECT "+oplogColumns+" FROM operations_log ORDER BY id DESC LIMIT $1", limit)
}

// ByRun returns the entries of one run in append order.
func (o *oplogStore) ByRun(ctx context.Context, runID string) ([]domain.OperationLogEntry, error) {
	return o.query(ctx, "SELECT "+oplogColumns+" FROM operations_log WHERE run_id = $1 ORDER BY id", runID)
}

func (o *oplogStore) query(ctx context.Context, query string, args ...any) ([]domain.OperationLogEntry, error) {
	rows, err := o.store.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying operations log: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OperationLogEntry, error) {
		var e domain.OperationLogEntry
		var stage, status string
		err := row.Scan(&e.ID, &e.RunID, &stage, &e.StartedAt, &e.FinishedAt, &status,
			&e.Counts.Created, &e.Counts.Updated, &e.Counts.Deleted, &e.Counts.Skipped,
			&e.Counts.Errored, &e.ErrorSummary)
		e.Stage = domain.Stage(stage)
		e.Status = domain.RunStatus(status)
		e.StartedAt = e.StartedAt.UTC()
		e.FinishedAt = e.FinishedAt.UTC()
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning operations log: %w", err)
	}
	return entries, nil
}
