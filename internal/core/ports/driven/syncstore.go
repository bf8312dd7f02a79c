package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

// SyncStateStore persists the change-feed cursor per scope.
type SyncStateStore interface {
	// Get retrieves sync state for a scope.
	// Returns domain.ErrNotFound if nothing has been recorded.
	Get(ctx context.Context, scope string) (*domain.SyncState, error)

	// Advance moves the cursor forward.
	// Returns domain.ErrCursorRegression if cursor is behind the stored one.
	Advance(ctx context.Context, scope string, cursor domain.Cursor) error

	// Reset overwrites the cursor unconditionally. Used for operator overrides.
	Reset(ctx context.Context, scope string, cursor domain.Cursor) error
}

// LeaseStore persists the single-run lease next to the sync state.
// Every method is atomic with respect to concurrent callers.
type LeaseStore interface {
	// Acquire takes the lease if it is free, expired at lease.AcquiredAt,
	// or already held by lease.Owner. Returns domain.ErrLeaseHeld otherwise.
	Acquire(ctx context.Context, lease domain.Lease) error

	// Renew extends a lease held by owner until expiresAt.
	// Returns domain.ErrLeaseLost if owner no longer holds it.
	Renew(ctx context.Context, scope, owner string, expiresAt time.Time) error

	// Release drops the lease if owner still holds it.
	Release(ctx context.Context, scope, owner string) error

	// Current returns the lease for scope, or domain.ErrNotFound.
	Current(ctx context.Context, scope string) (*domain.Lease, error)
}
