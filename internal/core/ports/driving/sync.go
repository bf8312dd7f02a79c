package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

// SyncOrchestrator pulls catalog changes into the raw store.
type SyncOrchestrator interface {
	// Sync walks the change feed (or a full snapshot) and upserts every page.
	Sync(ctx context.Context, opts SyncOptions) (*SyncReport, error)

	// Status returns progress of the sync currently running, if any.
	Status(ctx context.Context) (*SyncStatus, error)
}

// SyncOptions controls one sync.
type SyncOptions struct {
	// StartDate overrides the stored cursor when set.
	StartDate time.Time

	// MaxDates limits how many feed dates are walked. Zero means no limit.
	MaxDates int

	// Snapshot pages through the full listing snapshot instead of the change feed.
	Snapshot bool

	// MaxPages limits snapshot pages. Zero means no limit.
	MaxPages int
}

// SyncReport summarises a finished sync.
type SyncReport struct {
	Status      domain.RunStatus
	Stats       domain.UpsertStats
	Pages       int
	FailedPages int
	Dates       int
	Cursor      domain.Cursor

	// Swept counts records soft-deleted by the snapshot sweep.
	Swept int

	// FetchTime is the time spent in catalog calls, retries included, and
	// UpsertTime the time spent writing pages and cursors. Pages are fetched
	// ahead of the writes, so the two overlap.
	FetchTime  time.Duration
	UpsertTime time.Duration
}

// SyncStatus represents the current state of a sync operation.
type SyncStatus struct {
	// Running indicates if sync is currently in progress.
	Running bool

	// PagesCommitted is the count of pages committed so far.
	PagesCommitted int

	// ErrorCount is the number of page failures encountered.
	ErrorCount int

	// Cursor is the last committed position.
	Cursor domain.Cursor
}
