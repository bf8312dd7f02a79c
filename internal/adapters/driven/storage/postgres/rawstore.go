package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
	"github.com/custodia-labs/listsync/internal/logger"
)

const rawColumns = `external_id, payload, content_hash, change_type, source_created_at,
	first_seen_at, fetched_at, version, is_deleted, is_processed, skip_count, needs_manual_review`

// rawStore implements driven.RawStore.
type rawStore struct {
	store *Store
}

var _ driven.RawStore = (*rawStore)(nil)

// UpsertBatch locks the page's existing rows, applies the changes in order
// and writes the results with one pgx.Batch.
func (r *rawStore) UpsertBatch(ctx context.Context, changes []domain.Change) (domain.UpsertStats, error) {
	var stats domain.UpsertStats
	now := r.store.now()

	err := pgx.BeginFunc(ctx, r.store.pool, func(tx pgx.Tx) error {
		stats = domain.UpsertStats{}

		ids := make([]string, 0, len(changes))
		for _, ch := range changes {
			if ch.ExternalID != "" {
				ids = append(ids, ch.ExternalID)
			}
		}
		current, err := lockRaw(ctx, tx, ids)
		if err != nil {
			return err
		}

		b := &pgx.Batch{}
		for _, ch := range changes {
			existing := current[ch.ExternalID]
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

			queueRaw(b, next)
			if domain.NewVersion(existing, next) {
				queueVersion(b, domain.VersionOf(next))
			}
			current[next.ExternalID] = next
		}
		return sendBatch(ctx, tx, b)
	})
	if err != nil {
		return domain.UpsertStats{}, fmt.Errorf("upserting raw records: %w", err)
	}
	return stats, nil
}

// MarkMissingAsDeleted soft-deletes live records absent from seen.
func (r *rawStore) MarkMissingAsDeleted(ctx context.Context, seen map[string]struct{}, window domain.SnapshotWindow) (int, error) {
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}

	tag, err := r.store.pool.Exec(ctx, `
		UPDATE raw_records
		SET is_deleted = TRUE, is_processed = FALSE, change_type = $1, fetched_at = $2
		WHERE NOT is_deleted
		AND ($3::timestamptz IS NULL OR first_seen_at >= $3)
		AND ($4::timestamptz IS NULL OR first_seen_at < $4)
		AND NOT (external_id = ANY($5))
	`, int16(domain.ChangeDeleted), r.store.now().UTC(), nullTime(window.From), nullTime(window.To), ids)
	if err != nil {
		return 0, fmt.Errorf("soft-deleting missing records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Get retrieves a raw record.
func (r *rawStore) Get(ctx context.Context, externalID string) (*domain.RawRecord, error) {
	row := r.store.pool.QueryRow(ctx, "SELECT "+rawColumns+" FROM raw_records WHERE external_id = $1", externalID)
	rec, err := scanRaw(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

// ListUnprocessed returns live pending records after afterID.
func (r *rawStore) ListUnprocessed(ctx context.Context, afterID string, limit int) ([]domain.RawRecord, error) {
	return r.list(ctx, "NOT is_processed AND NOT is_deleted", afterID, limit)
}

// ListDeletedUnprocessed returns deleted pending records after afterID.
func (r *rawStore) ListDeletedUnprocessed(ctx context.Context, afterID string, limit int) ([]domain.RawRecord, error) {
	return r.list(ctx, "NOT is_processed AND is_deleted", afterID, limit)
}

func (r *rawStore) list(ctx context.Context, filter, afterID string, limit int) ([]domain.RawRecord, error) {
	query := "SELECT " + rawColumns + " FROM raw_records WHERE " + filter +
		" AND external_id > $1 ORDER BY external_id"
	args := []any{afterID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.store.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying raw records: %w", err)
	}
	defer rows.Close()

	var out []domain.RawRecord
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
	err := pgx.BeginFunc(ctx, r.store.pool, func(tx pgx.Tx) error {
		parked = false
		var current int64
		var skips int
		var review bool
		err := tx.QueryRow(ctx, `
			SELECT version, skip_count, needs_manual_review
			FROM raw_records WHERE external_id = $1 FOR UPDATE
		`, externalID).Scan(&current, &skips, &review)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading skip count: %w", err)
		}
		if current != version {
			return domain.ErrVersionConflict
		}

		skips++
		if skips >= maxSkips && !review {
			review = true
			parked = true
		}
		_, err = tx.Exec(ctx, `
			UPDATE raw_records
			SET skip_count = $1, needs_manual_review = $2, is_processed = is_processed OR $3
			WHERE external_id = $4
		`, skips, review, parked, externalID)
		if err != nil {
			return fmt.Errorf("recording skip: %w", err)
		}
		if parked {
			// The previous version's canonical view no longer matches the record
			if _, err := tx.Exec(ctx,
				"UPDATE processed_records SET active = FALSE WHERE external_id = $1", externalID); err != nil {
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
	if len(externalIDs) == 0 {
		return 0, nil
	}
	tag, err := r.store.pool.Exec(ctx, `
		UPDATE raw_records SET is_processed = FALSE
		WHERE external_id = ANY($1) AND NOT is_deleted AND NOT needs_manual_review
	`, externalIDs)
	if err != nil {
		return 0, fmt.Errorf("resetting processed flag: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// History returns every stored version of a record.
func (r *rawStore) History(ctx context.Context, externalID string) ([]domain.RawRecordVersion, error) {
	rows, err := r.store.pool.Query(ctx, `
		SELECT external_id, version, content_hash, payload, recorded_at
		FROM raw_record_versions WHERE external_id = $1 ORDER BY version
	`, externalID)
	if err != nil {
		return nil, fmt.Errorf("querying record history: %w", err)
	}
	defer rows.Close()

	out := []domain.RawRecordVersion{}
	for rows.Next() {
		var v domain.RawRecordVersion
		var payload []byte
		if err := rows.Scan(&v.ExternalID, &v.Version, &v.ContentHash, &payload, &v.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning record version: %w", err)
		}
		v.Payload = payload
		v.RecordedAt = v.RecordedAt.UTC()
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
	err := r.store.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_deleted),
			COUNT(*) FILTER (WHERE NOT is_processed),
			COUNT(*) FILTER (WHERE needs_manual_review)
		FROM raw_records
	`).Scan(&st.Total, &st.Deleted, &st.Unprocessed, &st.ManualReview)
	if err != nil {
		return domain.RawStats{}, fmt.Errorf("counting raw records: %w", err)
	}
	return st, nil
}

// ==================== Row helpers ====================

// lockRaw loads and row-locks the existing records among ids.
func lockRaw(ctx context.Context, tx pgx.Tx, ids []string) (map[string]*domain.RawRecord, error) {
	out := make(map[string]*domain.RawRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := tx.Query(ctx, "SELECT "+rawColumns+
		" FROM raw_records WHERE external_id = ANY($1) ORDER BY external_id FOR UPDATE", ids)
	if err != nil {
		return nil, fmt.Errorf("locking raw records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRaw(rows)
		if err != nil {
			return nil, err
		}
		out[rec.ExternalID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating raw records: %w", err)
	}
	return out, nil
}

func scanRaw(row pgx.Row) (*domain.RawRecord, error) {
	var rec domain.RawRecord
	var payload []byte
	var changeType int16
	var sourceCreated *time.Time

	err := row.Scan(&rec.ExternalID, &payload, &rec.ContentHash, &changeType, &sourceCreated,
		&rec.FirstSeenAt, &rec.FetchedAt, &rec.Version, &rec.IsDeleted, &rec.IsProcessed,
		&rec.SkipCount, &rec.NeedsManualReview)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning raw record: %w", err)
	}

	rec.Payload = payload
	rec.ChangeType = domain.ChangeType(changeType)
	rec.SourceCreatedAt = fromNullTime(sourceCreated)
	rec.FirstSeenAt = rec.FirstSeenAt.UTC()
	rec.FetchedAt = rec.FetchedAt.UTC()
	return &rec, nil
}

func queueRaw(b *pgx.Batch, rec *domain.RawRecord) {
	b.Queue(`
		INSERT INTO raw_records (`+rawColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (external_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			content_hash = EXCLUDED.content_hash,
			change_type = EXCLUDED.change_type,
			source_created_at = EXCLUDED.source_created_at,
			fetched_at = EXCLUDED.fetched_at,
			version = EXCLUDED.version,
			is_deleted = EXCLUDED.is_deleted,
			is_processed = EXCLUDED.is_processed,
			skip_count = EXCLUDED.skip_count,
			needs_manual_review = EXCLUDED.needs_manual_review
	`, rec.ExternalID, string(rec.Payload), rec.ContentHash, int16(rec.ChangeType),
		nullTime(rec.SourceCreatedAt), rec.FirstSeenAt.UTC(), rec.FetchedAt.UTC(), rec.Version,
		rec.IsDeleted, rec.IsProcessed, rec.SkipCount, rec.NeedsManualReview)
}

func queueVersion(b *pgx.Batch, v domain.RawRecordVersion) {
	b.Queue(`
		INSERT INTO raw_record_versions (external_id, version, content_hash, payload, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_id, version) DO NOTHING
	`, v.ExternalID, v.Version, v.ContentHash, string(v.Payload), v.RecordedAt.UTC())
}
