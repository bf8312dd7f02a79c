package driven

import (
	"context"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

// RawStore holds the as-fetched record for every known catalog entity.
type RawStore interface {
	// UpsertBatch applies one page of changes in a single transaction.
	// Unseen ids are inserted at version 1; a changed content hash bumps the
	// version and clears is_processed; an identical hash changes nothing.
	// Deletions soft-delete and clear is_processed.
	UpsertBatch(ctx context.Context, changes []domain.Change) (domain.UpsertStats, error)

	// MarkMissingAsDeleted soft-deletes every live record whose first sighting
	// lies inside window and whose id is not in seen.
	MarkMissingAsDeleted(ctx context.Context, seen map[string]struct{}, window domain.SnapshotWindow) (int, error)

	// Get retrieves a raw record. Returns domain.ErrNotFound if missing.
	Get(ctx context.Context, externalID string) (*domain.RawRecord, error)

	// ListUnprocessed returns live records with is_processed=false,
	// ordered by external id, starting after afterID.
	ListUnprocessed(ctx context.Context, afterID string, limit int) ([]domain.RawRecord, error)

	// ListDeletedUnprocessed returns soft-deleted records not yet reflected downstream.
	ListDeletedUnprocessed(ctx context.Context, afterID string, limit int) ([]domain.RawRecord, error)

	// RecordSkip counts a normalisation failure for the given version.
	// Once the count reaches maxSkips the record is marked processed and
	// flagged for manual review; the returned bool reports that transition.
	RecordSkip(ctx context.Context, externalID string, version int64, maxSkips int) (bool, error)

	// ResetProcessed clears is_processed on the given live records.
	ResetProcessed(ctx context.Context, externalIDs []string) (int, error)

	// History returns every stored version of a record, oldest first.
	History(ctx context.Context, externalID string) ([]domain.RawRecordVersion, error)

	// Stats summarises the raw table.
	Stats(ctx context.Context) (domain.RawStats, error)
}
