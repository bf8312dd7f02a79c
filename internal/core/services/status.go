package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
	"github.com/custodia-labs/listsync/internal/core/ports/driving"
)

// Ensure StatusService implements the interface.
var _ driving.StatusService = (*StatusService)(nil)

// recentRuns is the number of operations log entries in a status report.
const recentRuns = 10

// StatusService assembles a read-only view of the pipeline.
type StatusService struct {
	state     driven.SyncStateStore
	leases    driven.LeaseStore
	raw       driven.RawStore
	processed driven.ProcessedStore
	dict      snapshotSource
	oplog     driven.OperationsLogStore
}

// NewStatusService creates a status service.
func NewStatusService(
	state driven.SyncStateStore,
	leases driven.LeaseStore,
	raw driven.RawStore,
	processed driven.ProcessedStore,
	dict snapshotSource,
	oplog driven.OperationsLogStore,
) *StatusService {
	return &StatusService{
		state:     state,
		leases:    leases,
		raw:       raw,
		processed: processed,
		dict:      dict,
		oplog:     oplog,
	}
}

// Status returns the current pipeline state.
func (s *StatusService) Status(ctx context.Context) (*driving.StatusReport, error) {
	report := &driving.StatusReport{}

	st, err := s.state.Get(ctx, domain.DefaultScope)
	switch {
	case err == nil:
		report.SyncState = st
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("get sync state: %w", err)
	}

	lease, err := s.leases.Current(ctx, domain.DefaultScope)
	switch {
	case err == nil:
		report.Lease = lease
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("get lease: %w", err)
	}

	if report.Raw, err = s.raw.Stats(ctx); err != nil {
		return nil, fmt.Errorf("raw stats: %w", err)
	}
	if report.Processed, err = s.processed.Stats(ctx); err != nil {
		return nil, fmt.Errorf("processed stats: %w", err)
	}

	snap := s.dict.Snapshot()
	report.DictionaryVersion = snap.Version()
	report.DictionarySize = snap.Len()

	if report.RecentRuns, err = s.oplog.Recent(ctx, recentRuns); err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	return report, nil
}
