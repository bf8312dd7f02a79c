package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
)

// ==================== Dictionary Store ====================

// dictionaryStore implements driven.DictionaryStore.
type dictionaryStore struct {
	store *Store
}

var _ driven.DictionaryStore = (*dictionaryStore)(nil)

// Load reads every entry and the current version.
func (d *dictionaryStore) Load(ctx context.Context) (*domain.DictionarySnapshot, error) {
	var snapshot *domain.DictionarySnapshot

	// Both reads share a transaction so the version matches the entries.
	err := d.store.withTx(ctx, func(tx *sql.Tx) error {
		var version int64
		if err := tx.QueryRowContext(ctx,
			"SELECT version FROM dictionary_meta WHERE id = 1").Scan(&version); err != nil {
			return fmt.Errorf("reading dictionary version: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT source_token, source_language, canonical_token, provider, added_at
			FROM dictionary_entries
		`)
		if err != nil {
			return fmt.Errorf("querying dictionary entries: %w", err)
		}
		defer rows.Close()

		var entries []domain.TranslationEntry //nolint:prealloc // size unknown from query
		for rows.Next() {
			var e domain.TranslationEntry
			var provider, addedAt sql.NullString
			if err := rows.Scan(&e.SourceToken, &e.SourceLanguage, &e.CanonicalToken, &provider, &addedAt); err != nil {
				return fmt.Errorf("scanning dictionary entry: %w", err)
			}
			if provider.Valid {
				e.Provider = provider.String
			}
			e.AddedAt = parseNullableTime(addedAt)
			entries = append(entries, e)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating dictionary entries: %w", err)
		}

		snapshot = domain.NewDictionarySnapshot(version, entries)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Apply inserts or replaces entries and bumps the version.
func (d *dictionaryStore) Apply(ctx context.Context, entries []domain.TranslationEntry) (int64, error) {
	var version int64

	err := d.store.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO dictionary_entries (source_token, source_language, canonical_token, provider, added_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(source_token, source_language) DO UPDATE SET
				canonical_token = excluded.canonical_token,
				provider = excluded.provider,
				added_at = excluded.added_at
		`)
		if err != nil {
			return fmt.Errorf("preparing dictionary upsert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.SourceToken, e.SourceLanguage, e.CanonicalToken,
				nullString(e.Provider), formatNullableTime(e.AddedAt)); err != nil {
				return fmt.Errorf("saving dictionary entry %q: %w", e.SourceToken, err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE dictionary_meta SET version = version + 1 WHERE id = 1"); err != nil {
			return fmt.Errorf("bumping dictionary version: %w", err)
		}
		if err := tx.QueryRowContext(ctx,
			"SELECT version FROM dictionary_meta WHERE id = 1").Scan(&version); err != nil {
			return fmt.Errorf("reading dictionary version: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}
