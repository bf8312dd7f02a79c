package driven

import (
	"context"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

// ProcessedStore persists canonical records derived from raw records.
type ProcessedStore interface {
	// Save replaces the processed record for rec.ExternalID. When markProcessed
	// is set, the raw record is marked processed in the same transaction, but
	// only if its version still equals rec.SourceVersion; otherwise
	// domain.ErrVersionConflict is returned and nothing is written.
	Save(ctx context.Context, rec *domain.ProcessedRecord, markProcessed bool) error

	// Deactivate excludes a record from active queries and marks the raw
	// record processed, guarded by the raw version like Save.
	Deactivate(ctx context.Context, externalID string, rawVersion int64) error

	// Get retrieves a processed record, active or not. Returns domain.ErrNotFound if missing.
	Get(ctx context.Context, externalID string) (*domain.ProcessedRecord, error)

	// ListActive returns active records ordered by external id, starting after afterID.
	ListActive(ctx context.Context, afterID string, limit int) ([]domain.ProcessedRecord, error)

	// Gaps counts, per untranslated token, the active records that contain it.
	Gaps(ctx context.Context) (map[string]int, error)

	// IDsWithTokens returns ids of active records whose untranslated tokens
	// intersect tokens.
	IDsWithTokens(ctx context.Context, tokens []string) ([]string, error)

	// Stats summarises the processed table.
	Stats(ctx context.Context) (domain.ProcessedStats, error)
}
