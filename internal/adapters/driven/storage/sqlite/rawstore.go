package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
	"github.com/custodia-labs/listsync/internal/logger"
)

const rawColumns = `external_id, payload, content_hash, change_type, source_created_at,
	first_seen_at, fetched_at, version, is_deleted, is_processed, skip_count, needs_manual_review`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// rawStore implements driven.RawStore.
type rawStore struct {
	store *Store
}

var _ driven.RawStore = (*rawStore)(nil)

// UpsertBatch applies one page of changes in a single transaction.
func (r *rawStore) UpsertBatch(ctx context.Context, changes []domain.Change) (domain.UpsertStats, error) {
	var stats domain.UpsertStats
	now := r.store.now()

	err := r.store.withTx(ctx, func(tx *sql.Tx) error {
		stats = domain.UpsertStats{}
		for _, ch := range changes {
			existing, err := getRaw(ctx, tx, ch.ExternalID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}

			next, outcome, err := domain.ApplyChange(existing, ch, now)
			if err != nil {
				logger.Warn("Skipping change %q: %v", ch.ExternalID, err)
				stats.Skipped++
				continue
			}
			stats.Count(outcome)
			if next == nil {
				continue
			}

			if err := putRaw(ctx, tx, next); err != nil {
				return err
			}
			if domain.NewVersion(existing, next) {
				if err := appendVersion(ctx, tx, domain.VersionOf(next)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return domain.UpsertStats{}, err
	}
	return stats, nil
}

// MarkMissingAsDeleted soft-deletes live records absent from seen.
func (r *rawStore) MarkMissingAsDeleted(ctx context.Context, seen map[string]struct{}, window domain.SnapshotWindow) (int, error) {
	now := formatTime(r.store.now())
	n := 0

	err := r.store.withTx(ctx, func(tx *sql.Tx) error {
		n = 0
		query := "SELECT external_id FROM raw_records WHERE is_deleted = 0"
		var args []any
		if !window.From.IsZero() {
			query += " AND first_seen_at >= ?"
			args = append(args, formatTime(window.From))
		}
		if !window.To.IsZero() {
			query += " AND first_seen_at < ?"
			args = append(args, formatTime(window.To))
		}

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("querying live records: %w", err)
		}
		var missing []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scanning record id: %w", err)
			}
			if _, ok := seen[id]; !ok {
				missing = append(missing, id)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterating live records: %w", err)
		}
		rows.Close()

		stmt, err := tx.PrepareContext(ctx, `
			UPDATE raw_records
			SET is_deleted = 1, is_processed = 0, change_type = ?, fetched_at = ?
			WHERE external_id = ?
		`)
		if err != nil {
			return fmt.Errorf("preparing delete: %w", err)
		}
		defer stmt.Close()

		for _, id := range missing {
			if _, err := stmt.ExecContext(ctx, int(domain.ChangeDeleted), now, id); err != nil {
				return fmt.Errorf("soft-deleting %s: %w", id, err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Get retrieves a raw record.
func (r *rawStore) Get(ctx context.Context, externalID string) (*domain.RawRecord, error) {
	return getRaw(ctx, r.store.db, externalID)
}

// ListUnprocessed returns live pending records after afterID.
func (r *rawStore) ListUnprocessed(ctx context.Context, afterID string, limit int) ([]domain.RawRecord, error) {
	return r.list(ctx, "is_processed = 0 AND is_deleted = 0", afterID, limit)
}

// ListDeletedUnprocessed returns deleted pending records after afterID.
func (r *rawStore) ListDeletedUnprocessed(ctx context.Context, afterID string, limit int) ([]domain.RawRecord, error) {
	return r.list(ctx, "is_processed = 0 AND is_deleted = 1", afterID, limit)
}

func (r *rawStore) list(ctx context.Context, filter, afterID string, limit int) ([]domain.RawRecord, error) {
	query := "SELECT " + rawColumns + " FROM raw_records WHERE " + filter +
		" AND external_id > ? ORDER BY external_id"
	args := []any{afterID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying raw records: %w", err)
	}
	defer rows.Close()

	var out []domain.RawRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		rec, err := scanRaw(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating raw records: %w", err)
	}
	return out, nil
}

// RecordSkip counts a normalisation failure.
func (r *rawStore) RecordSkip(ctx context.Context, externalID string, version int64, maxSkips int) (bool, error) {
	parked := false

	err := r.store.withTx(ctx, func(tx *sql.Tx) error {
		parked = false
		var current int64
		var skips, review int
		err := tx.QueryRowContext(ctx, `
			SELECT version, skip_count, needs_manual_review FROM raw_records WHERE external_id = ?
		`, externalID).Scan(&current, &skips, &review)
		if err == sql.ErrNoRows {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading skip count: %w", err)
		}
		if current != version {
			return domain.ErrVersionConflict
		}

		skips++
		processed := 0
		if skips >= maxSkips && review == 0 {
			review = 1
			processed = 1
			parked = true
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE raw_records
			SET skip_count = ?, needs_manual_review = ?,
				is_processed = CASE WHEN ? = 1 THEN 1 ELSE is_processed END
			WHERE external_id = ?
		`, skips, review, processed, externalID)
		if err != nil {
			return fmt.Errorf("recording skip: %w", err)
		}
		if parked {
			// The previous version's canonical view no longer matches the record
			if _, err := tx.ExecContext(ctx,
				"UPDATE processed_records SET active = 0 WHERE external_id = ?", externalID); err != nil {
				return fmt.Errorf("deactivating processed record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return parked, nil
}

// ResetProcessed clears is_processed on live records.
func (r *rawStore) ResetProcessed(ctx context.Context, externalIDs []string) (int, error) {
	n := 0
	err := r.store.withTx(ctx, func(tx *sql.Tx) error {
		n = 0
		for _, ids := range chunk(externalIDs, maxVariables) {
			res, err := tx.ExecContext(ctx, `
				UPDATE raw_records SET is_processed = 0
				WHERE is_deleted = 0 AND needs_manual_review = 0
				AND external_id IN (`+placeholders(len(ids))+`)
			`, stringArgs(ids)...)
			if err != nil {
				return fmt.Errorf("resetting processed flag: %w", err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("counting reset records: %w", err)
			}
			n += int(affected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// History returns every stored version of a record.
func (r *rawStore) History(ctx context.Context, externalID string) ([]domain.RawRecordVersion, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT external_id, version, content_hash, payload, recorded_at
		FROM raw_record_versions
		WHERE external_id = ?
		ORDER BY version
	`, externalID)
	if err != nil {
		return nil, fmt.Errorf("querying record history: %w", err)
	}
	defer rows.Close()

	out := []domain.RawRecordVersion{}
	for rows.Next() {
		var v domain.RawRecordVersion
		var payload, recordedAt string
		if err := rows.Scan(&v.ExternalID, &v.Version, &v.ContentHash, &payload, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning record version: %w", err)
		}
		v.Payload = []byte(payload)
		v.RecordedAt = parseTime(recordedAt)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating record history: %w", err)
	}
	return out, nil
}

// Stats summarises the raw table.
func (r *rawStore) Stats(ctx context.Context) (domain.RawStats, error) {
	var st domain.RawStats
	err := r.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(is_deleted), 0),
			COALESCE(SUM(1 - is_processed), 0),
			COALESCE(SUM(needs_manual_review), 0)
		FROM raw_records
	`).Scan(&st.Total, &st.Deleted, &st.Unprocessed, &st.ManualReview)
	if err != nil {
		return domain.RawStats{}, fmt.Errorf("counting raw records: %w", err)
	}
	return st, nil
}

// ==================== Row helpers ====================

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRaw(ctx context.Context, q queryer, externalID string) (*domain.RawRecord, error) {
	row := q.QueryRowContext(ctx, "SELECT "+rawColumns+" FROM raw_records WHERE external_id = ?", externalID)
	rec, err := scanRaw(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

func scanRaw(row rowScanner) (*domain.RawRecord, error) {
	var rec domain.RawRecord
	var payload, firstSeen, fetched string
	var sourceCreated sql.NullString
	var changeType, deleted, processed, review int

	err := row.Scan(&rec.ExternalID, &payload, &rec.ContentHash, &changeType, &sourceCreated,
		&firstSeen, &fetched, &rec.Version, &deleted, &processed, &rec.SkipCount, &review)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning raw record: %w", err)
	}

	rec.Payload = []byte(payload)
	rec.ChangeType = domain.ChangeType(changeType)
	rec.SourceCreatedAt = parseNullableTime(sourceCreated)
	rec.FirstSeenAt = parseTime(firstSeen)
	rec.FetchedAt = parseTime(fetched)
	rec.IsDeleted = deleted == 1
	rec.IsProcessed = processed == 1
	rec.NeedsManualReview = review == 1
	return &rec, nil
}

func putRaw(ctx context.Context, tx *sql.Tx, rec *domain.RawRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO raw_records (`+rawColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			payload = excluded.payload,
			content_hash = excluded.content_hash,
			change_type = excluded.change_type,
			source_created_at = excluded.source_created_at,
			fetched_at = excluded.fetched_at,
			version = excluded.version,
			is_deleted = excluded.is_deleted,
			is_processed = excluded.is_processed,
			skip_count = excluded.skip_count,
			needs_manual_review = excluded.needs_manual_review
	`, rec.ExternalID, string(rec.Payload), rec.ContentHash, int(rec.ChangeType),
		formatNullableTime(rec.SourceCreatedAt), formatTime(rec.FirstSeenAt), formatTime(rec.FetchedAt),
		rec.Version, boolToInt(rec.IsDeleted), boolToInt(rec.IsProcessed), rec.SkipCount,
		boolToInt(rec.NeedsManualReview))
	if err != nil {
		return fmt.Errorf("saving raw record %s: %w", rec.ExternalID, err)
	}
	return nil
}

func appendVersion(ctx context.Context, tx *sql.Tx, v domain.RawRecordVersion) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO raw_record_versions (external_id, version, content_hash, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(external_id, version) DO NOTHING
	`, v.ExternalID, v.Version, v.ContentHash, string(v.Payload), formatTime(v.RecordedAt))
	if err != nil {
		return fmt.Errorf("recording version %d of %s: %w", v.Version, v.ExternalID, err)
	}
	return nil
}
