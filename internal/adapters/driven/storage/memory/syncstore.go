package memory

import (
	"context"
	"time"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
)

// syncStateStore implements driven.SyncStateStore.
type syncStateStore struct {
	store *Store
}

var _ driven.SyncStateStore = (*syncStateStore)(nil)

// Get retrieves sync state for a scope.
func (t *syncStateStore) Get(_ context.Context, scope string) (*domain.SyncState, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[scope]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &state, nil
}

// Advance moves the cursor forward.
func (t *syncStateStore) Advance(_ context.Context, scope string, cursor domain.Cursor) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[scope]; ok && cursor.Compare(state.Cursor) < 0 {
		return domain.ErrCursorRegression
	}
	s.states[scope] = domain.SyncState{Scope: scope, Cursor: cursor, UpdatedAt: s.now()}
	return nil
}

// Reset overwrites the cursor.
func (t *syncStateStore) Reset(_ context.Context, scope string, cursor domain.Cursor) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[scope] = domain.SyncState{Scope: scope, Cursor: cursor, UpdatedAt: s.now()}
	return nil
}

// leaseStore implements driven.LeaseStore.
type leaseStore struct {
	store *Store
}

var _ driven.LeaseStore = (*leaseStore)(nil)

// Acquire takes the lease when free, expired, or already ours.
func (l *leaseStore) Acquire(_ context.Context, lease domain.Lease) error {
	s := l.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.leases[lease.Scope]; ok && cur.Owner != lease.Owner && !cur.Expired(lease.AcquiredAt) {
		return domain.ErrLeaseHeld
	}
	s.leases[lease.Scope] = lease
	return nil
}

// Renew extends a lease held by owner.
func (l *leaseStore) Renew(_ context.Context, scope, owner string, expiresAt time.Time) error {
	s := l.store
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.leases[scope]
	if !ok || cur.Owner != owner {
		return domain.ErrLeaseLost
	}
	cur.ExpiresAt = expiresAt
	s.leases[scope] = cur
	return nil
}

// Release drops the lease if owner holds it.
func (l *leaseStore) Release(_ context.Context, scope, owner string) error {
	s := l.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.leases[scope]; ok && cur.Owner == owner {
		delete(s.leases, scope)
	}
	return nil
}

// Current returns the lease for scope.
func (l *leaseStore) Current(_ context.Context, scope string) (*domain.Lease, error) {
	s := l.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.leases[scope]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &cur, nil
}
