package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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
	return getSyncState(ctx, s.store.db, scope)
}

// Advance moves the cursor forward.
func (s *syncStateStore) Advance(ctx context.Context, scope string, cursor domain.Cursor) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getSyncState(ctx, tx, scope)
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
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		return putSyncState(ctx, tx, scope, cursor, s.store.now())
	})
}

func getSyncState(ctx context.Context, q queryer, scope string) (*domain.SyncState, error) {
	var state domain.SyncState
	var date sql.NullString
	var complete int
	var updatedAt string

	err := q.QueryRowContext(ctx, `
		SELECT scope, cursor_date, change_id, complete, updated_at
		FROM sync_states WHERE scope = ?
	`, scope).Scan(&state.Scope, &date, &state.Cursor.ChangeID, &complete, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning sync state: %w", err)
	}

	if date.Valid && date.String != "" {
		d, err := time.Parse(domain.DateLayout, date.String)
		if err != nil {
			return nil, fmt.Errorf("parsing cursor date %q: %w", date.String, err)
		}
		state.Cursor.Date = d
	}
	state.Cursor.Complete = complete == 1
	state.UpdatedAt = parseTime(updatedAt)
	return &state, nil
}

func putSyncState(ctx context.Context, tx *sql.Tx, scope string, cursor domain.Cursor, now time.Time) error {
	var date any
	if !cursor.IsZero() {
		date = cursor.Date.Format(domain.DateLayout)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_states (scope, cursor_date, change_id, complete, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET
			cursor_date = excluded.cursor_date,
			change_id = excluded.change_id,
			complete = excluded.complete,
			updated_at = excluded.updated_at
	`, scope, date, cursor.ChangeID, boolToInt(cursor.Complete), formatTime(now))
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
// The conditional upsert is a single statement, so two processes sharing
// the database file cannot both win.
func (l *leaseStore) Acquire(ctx context.Context, lease domain.Lease) error {
	res, err := l.store.db.ExecContext(ctx, `
		INSERT INTO sync_leases (scope, owner, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET
			owner = excluded.owner,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		WHERE sync_leases.owner = excluded.owner OR sync_leases.expires_at <= excluded.acquired_at
	`, lease.Scope, lease.Owner, formatTime(lease.AcquiredAt), formatTime(lease.ExpiresAt))
	if err != nil {
		return fmt.Errorf("acquiring lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking lease: %w", err)
	}
	if affected == 0 {
		return domain.ErrLeaseHeld
	}
	return nil
}

// Renew extends a lease held by owner.
func (l *leaseStore) Renew(ctx context.Context, scope, owner string, expiresAt time.Time) error {
	res, err := l.store.db.ExecContext(ctx, `
		UPDATE sync_leases SET expires_at = ? WHERE scope = ? AND owner = ?
	`, formatTime(expiresAt), scope, owner)
	if err != nil {
		return fmt.Errorf("renewing lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking lease: %w", err)
	}
	if affected == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

// Release drops the lease if owner holds it.
func (l *leaseStore) Release(ctx context.Context, scope, owner string) error {
	_, err := l.store.db.ExecContext(ctx,
		"DELETE FROM sync_leases WHERE scope = ? AND owner = ?", scope, owner)
	if err != nil {
		return fmt.Errorf("releasing lease: %w", err)
	}
	return nil
}

// Current returns the lease for scope.
func (l *leaseStore) Current(ctx context.Context, scope string) (*domain.Lease, error) {
	var lease domain.Lease
	var acquiredAt, expiresAt string
	err := l.store.db.QueryRowContext(ctx, `
		SELECT scope, owner, acquired_at, expires_at FROM sync_leases WHERE scope = ?
	`, scope).Scan(&lease.Scope, &lease.Owner, &acquiredAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning lease: %w", err)
	}
	lease.AcquiredAt = parseTime(acquiredAt)
	lease.ExpiresAt = parseTime(expiresAt)
	return &lease, nil
}
