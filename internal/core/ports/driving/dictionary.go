package driving

import (
	"context"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

// DictionaryService manages the translation dictionary.
type DictionaryService interface {
	// Snapshot returns the current immutable snapshot.
	Snapshot() *domain.DictionarySnapshot

	// Import merges entries. With overwrite, existing entries are replaced
	// and affected records are queued for re-normalisation.
	Import(ctx context.Context, entries []domain.TranslationEntry, overwrite bool) (*ImportReport, error)

	// Export returns every entry.
	Export(ctx context.Context) ([]domain.TranslationEntry, error)

	// Gaps lists untranslated tokens seen in at least minCount active records.
	Gaps(ctx context.Context, minCount int) ([]TokenGap, error)
}

// ImportReport summarises a dictionary import.
type ImportReport struct {
	Merge domain.MergeResult

	// Requeued counts records reset for re-normalisation.
	Requeued int
}

// TokenGap is one untranslated token and the number of records containing it.
type TokenGap struct {
	Token string `json:"token" yaml:"token"`
	Count int    `json:"count" yaml:"count"`
}
