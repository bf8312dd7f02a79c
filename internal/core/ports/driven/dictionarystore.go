package driven

import (
	"context"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

// DictionaryStore persists translation entries and the dictionary version.
type DictionaryStore interface {
	// Load reads every entry and the current version.
	Load(ctx context.Context) (*domain.DictionarySnapshot, error)

	// Apply inserts or replaces entries and bumps the version in one
	// transaction. Returns the new version.
	Apply(ctx context.Context, entries []domain.TranslationEntry) (int64, error)
}
