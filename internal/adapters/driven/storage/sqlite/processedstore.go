package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
)

const processedColumns = `external_id, listing, source_version, dictionary_version,
	has_untranslated, active, processed_at`

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

	return p.store.withTx(ctx, func(tx *sql.Tx) error {
		var version int64
		err := tx.QueryRowContext(ctx,
			"SELECT version FROM raw_records WHERE external_id = ?", rec.ExternalID).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && version != rec.SourceVersion) {
			return domain.ErrVersionConflict
		}
		if err != nil {
			return fmt.Errorf("reading raw version: %w", err)
		}

		if markProcessed {
			_, err := tx.ExecContext(ctx, `
				UPDATE raw_records SET is_processed = 1, skip_count = 0 WHERE external_id = ?
			`, rec.ExternalID)
			if err != nil {
				return fmt.Errorf("marking raw record processed: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO processed_records (`+processedColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(external_id) DO UPDATE SET
				listing = excluded.listing,
				source_version = excluded.source_version,
				dictionary_version = excluded.dictionary_version,
				has_untranslated = excluded.has_untranslated,
				active = excluded.active,
				processed_at = excluded.processed_at
		`, rec.ExternalID, string(listingJSON), rec.SourceVersion, rec.DictionaryVersion,
			boolToInt(rec.HasUntranslated), boolToInt(rec.Active), formatTime(rec.ProcessedAt))
		if err != nil {
			return fmt.Errorf("saving processed record: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM untranslated_tokens WHERE external_id = ?", rec.ExternalID); err != nil {
			return fmt.Errorf("clearing untranslated tokens: %w", err)
		}
		for _, tok := range rec.UntranslatedTokens {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO untranslated_tokens (external_id, token) VALUES (?, ?)
				ON CONFLICT(external_id, token) DO NOTHING
			`, rec.ExternalID, tok)
			if err != nil {
				return fmt.Errorf("saving untranslated token: %w", err)
			}
		}
		return nil
	})
}

// Deactivate excludes a record from active queries.
func (p *processedStore) Deactivate(ctx context.Context, externalID string, rawVersion int64) error {
	return p.store.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE raw_records SET is_processed = 1
			WHERE external_id = ? AND version = ? AND is_deleted = 1
		`, externalID, rawVersion)
		if err != nil {
			return fmt.Errorf("marking raw record processed: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking raw record: %w", err)
		}
		if affected == 0 {
			return domain.ErrVersionConflict
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE processed_records SET active = 0 WHERE external_id = ?", externalID); err != nil {
			return fmt.Errorf("deactivating processed record: %w", err)
		}
		return nil
	})
}

// Get retrieves a processed record.
func (p *processedStore) Get(ctx context.Context, externalID string) (*domain.ProcessedRecord, error) {
	row := p.store.db.QueryRowContext(ctx,
		"SELECT "+processedColumns+" FROM processed_records WHERE external_id = ?", externalID)
	rec, err := scanProcessed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tokens, err := p.tokensFor(ctx, []string{externalID})
	if err != nil {
		return nil, err
	}
	rec.UntranslatedTokens = tokens[externalID]
	return rec, nil
}

// ListActive returns active records after afterID.
func (p *processedStore) ListActive(ctx context.Context, afterID string, limit int) ([]domain.ProcessedRecord, error) {
	query := "SELECT " + processedColumns + " FROM processed_records WHERE active = 1 AND external_id > ? ORDER BY external_id"
	args := []any{afterID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := p.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying processed records: %w", err)
	}
	defer rows.Close()

	var out []domain.ProcessedRecord //nolint:prealloc // size unknown from query
	var ids []string
	for rows.Next() {
		rec, err := scanProcessed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
		ids = append(ids, rec.ExternalID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating processed records: %w", err)
	}
	rows.Close()

	tokens, err := p.tokensFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].UntranslatedTokens = tokens[out[i].ExternalID]
	}
	return out, nil
}

// Gaps counts untranslated tokens across active records.
func (p *processedStore) Gaps(ctx context.Context) (map[string]int, error) {
	rows, err := p.store.db.QueryContext(ctx, `
		SELECT t.token, COUNT(*)
		FROM untranslated_tokens t
		JOIN processed_records p ON p.external_id = t.external_id
		WHERE p.active = 1 AND p.has_untranslated = 1
		GROUP BY t.token
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
	set := make(map[string]struct{})
	for _, batch := range chunk(tokens, maxVariables) {
		rows, err := p.store.db.QueryContext(ctx, `
			SELECT DISTINCT t.external_id
			FROM untranslated_tokens t
			JOIN processed_records p ON p.external_id = t.external_id
			WHERE p.active = 1 AND t.token IN (`+placeholders(len(batch))+`)
		`, stringArgs(batch)...)
		if err != nil {
			return nil, fmt.Errorf("querying records by token: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning record id: %w", err)
			}
			set[id] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterating records by token: %w", err)
		}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Stats summarises the processed table.
func (p *processedStore) Stats(ctx context.Context) (domain.ProcessedStats, error) {
	var st domain.ProcessedStats
	err := p.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(active), 0),
			COALESCE(SUM(CASE WHEN active = 1 AND has_untranslated = 1 THEN 1 ELSE 0 END), 0)
		FROM processed_records
	`).Scan(&st.Total, &st.Active, &st.Untranslated)
	if err != nil {
		return domain.ProcessedStats{}, fmt.Errorf("counting processed records: %w", err)
	}
	return st, nil
}

// tokensFor loads the sorted untranslated tokens of ids.
func (p *processedStore) tokensFor(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	for _, batch := range chunk(ids, maxVariables) {
		rows, err := p.store.db.QueryContext(ctx, `
			SELECT external_id, token FROM untranslated_tokens
			WHERE external_id IN (`+placeholders(len(batch))+`)
			ORDER BY external_id, token
		`, stringArgs(batch)...)
		if err != nil {
			return nil, fmt.Errorf("querying untranslated tokens: %w", err)
		}
		for rows.Next() {
			var id, tok string
			if err := rows.Scan(&id, &tok); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning untranslated token: %w", err)
			}
			out[id] = append(out[id], tok)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterating untranslated tokens: %w", err)
		}
	}
	return out, nil
}

func scanProcessed(row rowScanner) (*domain.ProcessedRecord, error) {
	var rec domain.ProcessedRecord
	var listingJSON, processedAt string
	var untranslated, active int

	err := row.Scan(&rec.ExternalID, &listingJSON, &rec.SourceVersion, &rec.DictionaryVersion,
		&untranslated, &active, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning processed record: %w", err)
	}

	if err := json.Unmarshal([]byte(listingJSON), &rec.Listing); err != nil {
		return nil, fmt.Errorf("unmarshalling listing: %w", err)
	}
	rec.HasUntranslated = untranslated == 1
	rec.Active = active == 1
	rec.ProcessedAt = parseTime(processedAt)
	return &rec, nil
}
