package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
)

// ==================== Sync State Store ====================

// syncStateStore implements driven.SyncStateStore.
type syncStateStore struct {
	store *Store
}

var _ driven.SyncStateStore = (*syncStateStore)(nil)

// Get retrieves sync state for a scope.
func (s *syncStateStore) Get(ctx context.Context, scope string) (*domain.SyncState, error) {
	return getSyncState(s.store.pool.QueryRow(ctx, syncStateQuery, scope))
}

// Advance moves the cursor forward.
func (s *syncStateStore) Advance(ctx context.Context, scope string, cursor domain.Cursor) error {
	return pgx.BeginFunc(ctx, s.store.pool, func(tx pgx.Tx) error {
		current, err := getSyncState(tx.QueryRow(ctx, syncStateQuery+" FOR UPDATE", scope))
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if current != nil && cursor.Compare(current.Cursor) < 0 {
			return domain.ErrCursorRegression
		}
		return putSyncState(ctx, tx, scope, cursor, s.store.now())
	})
}

// Reset overwrites the cursor.
func (s *syncStateStore) Reset(ctx context.Context, scope string, cursor domain.Cursor) error {
	return putSyncState(ctx, s.store.pool, scope, cursor, s.store.now())
}

const syncStateQuery = `
	SELECT scope, cursor_date, change_id, complete, updated_at
	FROM sync_states WHERE scope = $1`

func getSyncState(row pgx.Row) (*domain.SyncState, error) {
	var state domain.SyncState
	var date *time.Time
	err := row.Scan(&state.Scope, &date, &state.Cursor.ChangeID, &state.Cursor.Complete, &state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning sync state: %w", err)
	}
	if date != nil {
		state.Cursor.Date = domain.Day(*date)
	}
	state.UpdatedAt = state.UpdatedAt.UTC()
	return &state, nil
}

// execer is satisfied by *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func putSyncState(ctx context.Context, db execer, scope string, cursor domain.Cursor, now time.Time) error {
	var date any
	if !cursor.IsZero() {
		date = domain.Day(cursor.Date)
	}
	_, err := db.Exec(ctx, `
		INSERT INTO sync_states (scope, cursor_date, change_id, complete, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope) DO UPDATE SET
			cursor_date = EXCLUDED.cursor_date,
			change_id = EXCLUDED.change_id,
			complete = EXCLUDED.complete,
			updated_at = EXCLUDED.updated_at
	`, scope, date, cursor.ChangeID, cursor.Complete, now.UTC())
	if err != nil {
		return fmt.Errorf("saving sync state: %w", err)
	}
	return nil
}

// ==================== Lease Store ====================

// leaseStore implements driven.LeaseStore.
type leaseStore struct {
	store *Store
}

var _ driven.LeaseStore = (*leaseStore)(nil)

// Acquire takes the lease when free, expired, or already ours.
func (l *leaseStore) Acquire(ctx context.Context, lease domain.Lease) error {
	tag, err := l.store.pool.Exec(ctx, `
		INSERT INTO sync_leases (scope, owner, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scope) DO UPDATE SET
			owner = EXCLUDED.owner,
			acquired_at = EXCLUDED.acquired_at,
			expires_at = EXCLUDED.expires_at
		WHERE sync_leases.owner = EXCLUDED.owner OR sync_leases.expires_at <= EXCLUDED.acquired_at
	`, lease.Scope, lease.Owner, lease.AcquiredAt.UTC(), lease.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("acquiring lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLeaseHeld
	}
	return nil
}

// Renew extends a lease held by owner.
func (l *leaseStore) Renew(ctx context.Context, scope, owner string, expiresAt time.Time) error {
	tag, err := l.store.pool.Exec(ctx,
		"UPDATE sync_leases SET expires_at = $1 WHERE scope = $2 AND owner = $3",
		expiresAt.UTC(), scope, owner)
	if err != nil {
		return fmt.Errorf("renewing lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

// Release drops the lease if owner holds it.
func (l *leaseStore) Release(ctx context.Context, scope, owner string) error {
	if _, err := l.store.pool.Exec(ctx,
		"DELETE FROM sync_leases WHERE scope = $1 AND owner = $2", scope, owner); err != nil {
		return fmt.Errorf("releasing lease: %w", err)
	}
	return nil
}

// Current returns the lease for scope.
func (l *leaseStore) Current(ctx context.Context, scope string) (*domain.Lease, error) {
	var lease domain.Lease
	err := l.store.pool.QueryRow(ctx,
		"SELECT scope, owner, acquired_at, expires_at FROM sync_leases WHERE scope = $1", scope).
		Scan(&lease.Scope, &lease.Owner, &lease.AcquiredAt, &lease.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning lease: %w", err)
	}
	lease.AcquiredAt = lease.AcquiredAt.UTC()
	lease.ExpiresAt = lease.ExpiresAt.UTC()
	return &lease, nil
}
