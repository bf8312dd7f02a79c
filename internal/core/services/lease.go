package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
	"github.com/custodia-labs/listsync/internal/logger"
)

// LeaseManager hands out the single-run lease and keeps it alive.
type LeaseManager struct {
	store driven.LeaseStore
	ttl   time.Duration
	now   func() time.Time

	// heartbeat defaults to ttl/3.
	heartbeat time.Duration
}

// NewLeaseManager creates a lease manager with the given time-to-live.
func NewLeaseManager(store driven.LeaseStore, ttl time.Duration) *LeaseManager {
	if ttl <= 0 {
		ttl = domain.DefaultSettings().Lease.TTL
	}
	return &LeaseManager{
		store:     store,
		ttl:       ttl,
		now:       time.Now,
		heartbeat: ttl / 3,
	}
}

// HeldLease is a lease owned by this process. Its context is cancelled
// when the lease is released or lost.
type HeldLease struct {
	lease  domain.Lease
	m      *LeaseManager
	ctx    context.Context
	cancel context.CancelFunc

	done     chan struct{}
	stopOnce sync.Once

	mu   sync.Mutex
	lost bool
}

// Acquire takes the lease for scope with a fresh owner id and starts the
// heartbeat. Returns domain.ErrLeaseHeld if another live owner holds it.
func (m *LeaseManager) Acquire(ctx context.Context, scope string) (*HeldLease, error) {
	now := m.now()
	lease := domain.Lease{
		Scope:      scope,
		Owner:      uuid.NewString(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(m.ttl),
	}
	if err := m.store.Acquire(ctx, lease); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &HeldLease{
		lease:  lease,
		m:      m,
		ctx:    runCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.beat()

	logger.Debug("Acquired lease %s for %s until %s", lease.Owner, scope, lease.ExpiresAt.Format(time.RFC3339))
	return h, nil
}

// Context is cancelled once the lease is released or lost.
func (h *HeldLease) Context() context.Context {
	return h.ctx
}

// Owner returns the owner id recorded in the store.
func (h *HeldLease) Owner() string {
	return h.lease.Owner
}

// Lost reports whether a heartbeat found the lease taken over.
func (h *HeldLease) Lost() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lost
}

// Release stops the heartbeat and drops the lease.
func (h *HeldLease) Release(ctx context.Context) error {
	h.stop()
	if h.Lost() {
		return nil
	}
	if err := h.m.store.Release(ctx, h.lease.Scope, h.lease.Owner); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

func (h *HeldLease) stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.cancel()
	})
}

// beat renews the lease until released. A renewal that finds the lease
// owned by someone else cancels the run context.
func (h *HeldLease) beat() {
	t := time.NewTicker(h.m.heartbeat)
	defer t.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-h.ctx.Done():
			return
		case <-t.C:
			expires := h.m.now().Add(h.m.ttl)
			err := h.m.store.Renew(context.WithoutCancel(h.ctx), h.lease.Scope, h.lease.Owner, expires)
			switch {
			case err == nil:
				logger.Debug("Renewed lease %s until %s", h.lease.Owner, expires.Format(time.RFC3339))
			case errors.Is(err, domain.ErrLeaseLost):
				logger.Error("Lease %s lost; stopping run", h.lease.Owner)
				h.mu.Lock()
				h.lost = true
				h.mu.Unlock()
				h.cancel()
				return
			default:
				logger.Warn("Renewing lease %s: %v", h.lease.Owner, err)
			}
		}
	}
}
