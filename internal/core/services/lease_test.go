package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/listsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/listsync/internal/core/domain"
)

func TestLeaseManager_AcquireRelease(t *testing.T) {
	store := memory.NewStore()
	m := NewLeaseManager(store.LeaseStore(), time.Minute)
	ctx := context.Background()

	held, err := m.Acquire(ctx, domain.DefaultScope)
	require.NoError(t, err)
	assert.NotEmpty(t, held.Owner())

	cur, err := store.LeaseStore().Current(ctx, domain.DefaultScope)
	require.NoError(t, err)
	assert.Equal(t, held.Owner(), cur.Owner)

	_, err = m.Acquire(ctx, domain.DefaultScope)
	assert.ErrorIs(t, err, domain.ErrLeaseHeld)

	require.NoError(t, held.Release(ctx))
	assert.ErrorIs(t, held.Context().Err(), context.Canceled)
	assert.False(t, held.Lost())

	_, err = store.LeaseStore().Current(ctx, domain.DefaultScope)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	again, err := m.Acquire(ctx, domain.DefaultScope)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLeaseManager_ExpiredLeaseIsTakenOver(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	require.NoError(t, store.LeaseStore().Acquire(ctx, domain.Lease{
		Scope:      domain.DefaultScope,
		Owner:      "crashed",
		AcquiredAt: past,
		ExpiresAt:  past.Add(time.Minute),
	}))

	held, err := NewLeaseManager(store.LeaseStore(), time.Minute).Acquire(ctx, domain.DefaultScope)
	require.NoError(t, err)
	defer held.Release(ctx)

	cur, err := store.LeaseStore().Current(ctx, domain.DefaultScope)
	require.NoError(t, err)
	assert.Equal(t, held.Owner(), cur.Owner)
}

func TestLeaseManager_HeartbeatRenews(t *testing.T) {
	store := memory.NewStore()
	m := NewLeaseManager(store.LeaseStore(), time.Minute)
	m.heartbeat = 5 * time.Millisecond
	ctx := context.Background()

	held, err := m.Acquire(ctx, domain.DefaultScope)
	require.NoError(t, err)
	defer held.Release(ctx)

	first, err := store.LeaseStore().Current(ctx, domain.DefaultScope)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cur, err := store.LeaseStore().Current(ctx, domain.DefaultScope)
		return err == nil && cur.ExpiresAt.After(first.ExpiresAt)
	}, time.Second, 5*time.Millisecond)
	assert.NoError(t, held.Context().Err())
}

func TestLeaseManager_LostLeaseCancelsRun(t *testing.T) {
	store := memory.NewStore()
	m := NewLeaseManager(store.LeaseStore(), time.Minute)
	m.heartbeat = 5 * time.Millisecond
	ctx := context.Background()

	held, err := m.Acquire(ctx, domain.DefaultScope)
	require.NoError(t, err)

	// Another process takes over after our lease lapsed.
	require.NoError(t, store.LeaseStore().Release(ctx, domain.DefaultScope, held.Owner()))
	now := time.Now()
	require.NoError(t, store.LeaseStore().Acquire(ctx, domain.Lease{
		Scope:      domain.DefaultScope,
		Owner:      "other",
		AcquiredAt: now,
		ExpiresAt:  now.Add(time.Hour),
	}))

	select {
	case <-held.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("run context not cancelled after lease loss")
	}
	assert.True(t, held.Lost())
	assert.Equal(t, domain.ErrLeaseLost, leaseErr(held, context.Canceled))

	require.NoError(t, held.Release(ctx))
	cur, err := store.LeaseStore().Current(ctx, domain.DefaultScope)
	require.NoError(t, err)
	assert.Equal(t, "other", cur.Owner, "release must not drop the new owner's lease")
}

func TestNewLeaseManager_DefaultTTL(t *testing.T) {
	m := NewLeaseManager(memory.NewStore().LeaseStore(), 0)
	assert.Equal(t, domain.DefaultSettings().Lease.TTL, m.ttl)
	assert.Equal(t, m.ttl/3, m.heartbeat)
}
