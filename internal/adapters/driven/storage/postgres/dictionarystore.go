package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
)

// dictionaryStore implements driven.DictionaryStore.
type dictionaryStore struct {
	store *Store
}

var _ driven.DictionaryStore = (*dictionaryStore)(nil)

// Load reads every entry and the current version from one consistent snapshot.
func (d *dictionaryStore) Load(ctx context.Context) (*domain.DictionarySnapshot, error) {
	var snapshot *domain.DictionarySnapshot
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

	err := pgx.BeginTxFunc(ctx, d.store.pool, opts, func(tx pgx.Tx) error {
		var version int64
		if err := tx.QueryRow(ctx, "SELECT version FROM dictionary_meta WHERE id = 1").Scan(&version); err != nil {
			return fmt.Errorf("reading dictionary version: %w", err)
		}

		rows, err := tx.Query(ctx, `
			SELECT source_token, source_language, canonical_token, provider, added_at
			FROM dictionary_entries
		`)
		if err != nil {
			return fmt.Errorf("querying dictionary entries: %w", err)
		}
		defer rows.Close()

		var entries []domain.TranslationEntry
		for rows.Next() {
			var e domain.TranslationEntry
			var provider *string
			var addedAt *time.Time
			if err := rows.Scan(&e.SourceToken, &e.SourceLanguage, &e.CanonicalToken, &provider, &addedAt); err != nil {
				return fmt.Errorf("scanning dictionary entry: %w", err)
			}
			if provider != nil {
				e.Provider = *provider
			}
			e.AddedAt = fromNullTime(addedAt)
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

	err := pgx.BeginFunc(ctx, d.store.pool, func(tx pgx.Tx) error {
		// The meta row lock serialises concurrent writers.
		if err := tx.QueryRow(ctx,
			"UPDATE dictionary_meta SET version = version + 1 WHERE id = 1 RETURNING version").Scan(&version); err != nil {
			return fmt.Errorf("bumping dictionary version: %w", err)
		}

		b := &pgx.Batch{}
		for _, e := range entries {
			b.Queue(`
				INSERT INTO dictionary_entries (source_token, source_language, canonical_token, provider, added_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (source_token, source_language) DO UPDATE SET
					canonical_token = EXCLUDED.canonical_token,
					provider = EXCLUDED.provider,
					added_at = EXCLUDED.added_at
			`, e.SourceToken, e.SourceLanguage, e.CanonicalToken, nullString(e.Provider), nullTime(e.AddedAt))
		}
		if err := sendBatch(ctx, tx, b); err != nil {
			return fmt.Errorf("saving dictionary entries: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}
