package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
)

const processedColumns = `external_id, listing, source_version, dictionary_version,
	has_untranslated, untranslated_tokens, active, processed_at`

// processedStore implements driven.ProcessedStore.
type processedStore struct {
	store *Store
}

var _ driven.ProcessedStore = (*processedStore)(nil)

// Save replaces a processed record and optionally marks the raw record processed.
func (p *processedStore) Save(ctx context.Context, rec *domain.ProcessedRecord, markProcessed bool) error {
	if rec == nil {
		return domain.ErrInvalidInput
	}
	listingJSON, err := json.Marshal(rec.Listing)
	if err != nil {
		return fmt.Errorf("marshalling listing: %w", err)
	}
	tokens := rec.UntranslatedTokens
	if tokens == nil {
		tokens = []string{}
	}

	return pgx.BeginFunc(ctx, p.store.pool, func(tx pgx.Tx) error {
		var version int64
		err := tx.QueryRow(ctx,
			"SELECT version FROM raw_records WHERE external_id = $1 FOR UPDATE", rec.ExternalID).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && version != rec.SourceVersion) {
			return domain.ErrVersionConflict
		}
		if err != nil {
			return fmt.Errorf("reading raw version: %w", err)
		}

		b := &pgx.Batch{}
		if markProcessed {
			b.Queue("UPDATE raw_records SET is_processed = TRUE, skip_count = 0 WHERE external_id = $1", rec.ExternalID)
		}
		b.Queue(`
			INSERT INTO processed_records (`+processedColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (external_id) DO UPDATE SET
				listing = EXCLUDED.listing,
				source_version = EXCLUDED.source_version,
				dictionary_version = EXCLUDED.dictionary_version,
				has_untranslated = EXCLUDED.has_untranslated,
				untranslated_tokens = EXCLUDED.untranslated_tokens,
				active = EXCLUDED.active,
				processed_at = EXCLUDED.processed_at
		`, rec.ExternalID, string(listingJSON), rec.SourceVersion, rec.DictionaryVersion,
			rec.HasUntranslated, tokens, rec.Active, rec.ProcessedAt.UTC())
		if err := sendBatch(ctx, tx, b); err != nil {
			return fmt.Errorf("saving processed record: %w", err)
		}
		return nil
	})
}

// Deactivate excludes a record from active queries.
func (p *processedStore) Deactivate(ctx context.Context, externalID string, rawVersion int64) error {
	return pgx.BeginFunc(ctx, p.store.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE raw_records SET is_processed = TRUE
			WHERE external_id = $1 AND version = $2 AND is_deleted
		`, externalID, rawVersion)
		if err != nil {
			return fmt.Errorf("marking raw record processed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrVersionConflict
		}
		if _, err := tx.Exec(ctx,
			"UPDATE processed_records SET active = FALSE WHERE external_id = $1", externalID); err != nil {
			return fmt.Errorf("deactivating processed record: %w", err)
		}
		return nil
	})
}

// Get retrieves a processed record.
func (p *processedStore) Get(ctx context.Context, externalID string) (*domain.ProcessedRecord, error) {
	row := p.store.pool.QueryRow(ctx,
		"SELECT "+processedColumns+" FROM processed_records WHERE external_id = $1", externalID)
	rec, err := scanProcessed(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

// ListActive returns active records after afterID.
func (p *processedStore) ListActive(ctx context.Context, afterID string, limit int) ([]domain.ProcessedRecord, error) {
	query := "SELECT " + processedColumns + " FROM processed_records WHERE active AND external_id > $1 ORDER BY external_id"
	args := []any{afterID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := p.store.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying processed records: %w", err)
	}
	defer rows.Close()

	var out []domain.ProcessedRecord
	for rows.Next() {
		rec, err := scanProcessed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating processed records: %w", err)
	}
	return out, nil
}

// Gaps counts untranslated tokens across active records.
func (p *processedStore) Gaps(ctx context.Context) (map[string]int, error) {
	rows, err := p.store.pool.Query(ctx, `
		SELECT tok, COUNT(*)
		FROM processed_records, unnest(untranslated_tokens) AS tok
		WHERE active AND has_untranslated
		GROUP BY tok
	`)
	if err != nil {
		return nil, fmt.Errorf("querying gaps: %w", err)
	}
	defer rows.Close()

	gaps := make(map[string]int)
	for rows.Next() {
		var token string
		var count int
		if err := rows.Scan(&token, &count); err != nil {
			return nil, fmt.Errorf("scanning gap: %w", err)
		}
		gaps[token] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gaps: %w", err)
	}
	return gaps, nil
}

// IDsWithTokens returns active records containing any of tokens.
func (p *processedStore) IDsWithTokens(ctx context.Context, tokens []string) ([]string, error) {
	if len(tokens) == 0 {
		return []string{}, nil
	}
	rows, err := p.store.pool.Query(ctx, `
		SELECT external_id FROM processed_records
		WHERE active AND untranslated_tokens && $1::text[]
		ORDER BY external_id
	`, tokens)
	if err != nil {
		return nil, fmt.Errorf("querying records by token: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collecting record ids: %w", err)
	}
	return ids, nil
}

// Stats summarises the processed table.
func (p *processedStore) Stats(ctx context.Context) (domain.ProcessedStats, error) {
	var st domain.ProcessedStats
	err := p.store.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE active),
			COUNT(*) FILTER (WHERE active AND has_untranslated)
		FROM processed_records
	`).Scan(&st.Total, &st.Active, &st.Untranslated)
	if err != nil {
		return domain.ProcessedStats{}, fmt.Errorf("counting processed records: %w", err)
	}
	return st, nil
}

func scanProcessed(row pgx.Row) (*domain.ProcessedRecord, error) {
	var rec domain.ProcessedRecord
	var listingJSON []byte
	var tokens []string

	err := row.Scan(&rec.ExternalID, &listingJSON, &rec.SourceVersion, &rec.DictionaryVersion,
		&rec.HasUntranslated, &tokens, &rec.Active, &rec.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning processed record: %w", err)
	}

	if err := json.Unmarshal(listingJSON, &rec.Listing); err != nil {
		return nil, fmt.Errorf("unmarshalling listing: %w", err)
	}
	if len(tokens) > 0 {
		rec.UntranslatedTokens = tokens
	}
	rec.ProcessedAt = rec.ProcessedAt.UTC()
	return &rec, nil
}
