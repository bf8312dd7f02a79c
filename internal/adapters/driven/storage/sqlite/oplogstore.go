package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
)

// ==================== Operations Log Store ====================

// oplogStore implements driven.OperationsLogStore.
type oplogStore struct {
	store *Store
}

var _ driven.OperationsLogStore = (*oplogStore)(nil)

const oplogColumns = `id, run_id, stage, started_at, finished_at, status,
	created, updated, deleted, skipped, errored, error_summary`

// Append stores an entry and sets its ID.
func (o *oplogStore) Append(ctx context.Context, entry *domain.OperationLogEntry) error {
	if entry == nil {
		return domain.ErrInvalidInput
	}
	res, err := o.store.db.ExecContext(ctx, `
		INSERT INTO operations_log (run_id, stage, started_at, finished_at, status,
			created, updated, deleted, skipped, errored, error_summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.RunID, string(entry.Stage), formatTime(entry.StartedAt), formatTime(entry.FinishedAt),
		string(entry.Status), entry.Counts.Created, entry.Counts.Updated, entry.Counts.Deleted,
		entry.Counts.Skipped, entry.Counts.Errored, nullString(entry.ErrorSummary))
	if err != nil {
		return fmt.Errorf("appending operations log entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading operations log id: %w", err)
	}
	entry.ID = id
	return nil
}

// Recent returns the latest entries, most recent first.
func (o *oplogStore) Recent(ctx context.Context, limit int) ([]domain.OperationLogEntry, error) {
	query := "SELECT " + oplogColumns + " FROM operations_log ORDER BY id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return o.query(ctx, query, args...)
}

// ByRun returns the entries of one run in append order.
func (o *oplogStore) ByRun(ctx context.Context, runID string) ([]domain.OperationLogEntry, error) {
	return o.query(ctx, "SELECT "+oplogColumns+" FROM operations_log WHERE run_id = ? ORDER BY id", runID)
}

func (o *oplogStore) query(ctx context.Context, query string, args ...any) ([]domain.OperationLogEntry, error) {
	rows, err := o.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying operations log: %w", err)
	}
	defer rows.Close()

	var out []domain.OperationLogEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e domain.OperationLogEntry
		var stage, status, startedAt, finishedAt string
		var summary sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &stage, &startedAt, &finishedAt, &status,
			&e.Counts.Created, &e.Counts.Updated, &e.Counts.Deleted, &e.Counts.Skipped,
			&e.Counts.Errored, &summary); err != nil {
			return nil, fmt.Errorf("scanning operations log entry: %w", err)
		}
		e.Stage = domain.Stage(stage)
		e.Status = domain.RunStatus(status)
		e.StartedAt = parseTime(startedAt)
		e.FinishedAt = parseTime(finishedAt)
		if summary.Valid {
			e.ErrorSummary = summary.String
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating operations log: %w", err)
	}
	return out, nil
}
