package memory

import (
	"context"
	"sort"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
	"github.com/custodia-labs/listsync/internal/logger"
)

// rawStore implements driven.RawStore.
type rawStore struct {
	store *Store
}

var _ driven.RawStore = (*rawStore)(nil)

// UpsertBatch applies changes in order under the store lock.
func (r *rawStore) UpsertBatch(_ context.Context, changes []domain.Change) (domain.UpsertStats, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats domain.UpsertStats
	now := s.now()
	for _, ch := range changes {
		var existing *domain.RawRecord
		if rec, ok := s.raw[ch.ExternalID]; ok {
			existing = &rec
		}
		next, outcome, err := domain.ApplyChange(existing, ch, now)
		if err != nil {
			logger.Warn("Skipping change %q: %v", ch.ExternalID, err)
			stats.Skipped++
			continue
		}
		stats.Count(outcome)
		if next == nil {
			continue
		}
		s.raw[next.ExternalID] = *next
		if domain.NewVersion(existing, next) {
			s.history[next.ExternalID] = append(s.history[next.ExternalID], domain.VersionOf(next))
		}
	}
	return stats, nil
}

// MarkMissingAsDeleted soft-deletes live records absent from seen.
func (r *rawStore) MarkMissingAsDeleted(_ context.Context, seen map[string]struct{}, window domain.SnapshotWindow) (int, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for id, rec := range s.raw {
		if rec.IsDeleted || !window.Contains(rec.FirstSeenAt) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		s.raw[id] = domain.MarkDeleted(rec, now)
		n++
	}
	return n, nil
}

// Get retrieves a raw record.
func (r *rawStore) Get(_ context.Context, externalID string) (*domain.RawRecord, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.raw[externalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

// ListUnprocessed returns live pending records after afterID.
func (r *rawStore) ListUnprocessed(_ context.Context, afterID string, limit int) ([]domain.RawRecord, error) {
	return r.list(afterID, limit, func(rec domain.RawRecord) bool {
		return !rec.IsProcessed && !rec.IsDeleted
	}), nil
}

// ListDeletedUnprocessed returns deleted pending records after afterID.
func (r *rawStore) ListDeletedUnprocessed(_ context.Context, afterID string, limit int) ([]domain.RawRecord, error) {
	return r.list(afterID, limit, func(rec domain.RawRecord) bool {
		return !rec.IsProcessed && rec.IsDeleted
	}), nil
}

func (r *rawStore) list(afterID string, limit int, keep func(domain.RawRecord) bool) []domain.RawRecord {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.RawRecord
	for id, rec := range s.raw {
		if id > afterID && keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RecordSkip counts a normalisation failure.
func (r *rawStore) RecordSkip(_ context.Context, externalID string, version int64, maxSkips int) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.raw[externalID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if rec.Version != version {
		return false, domain.ErrVersionConflict
	}
	rec.SkipCount++
	parked := false
	if rec.SkipCount >= maxSkips && !rec.NeedsManualReview {
		rec.NeedsManualReview = true
		rec.IsProcessed = true
		parked = true
		if proc, ok := s.processed[externalID]; ok {
			proc.Active = false
			s.processed[externalID] = proc
		}
	}
	s.raw[externalID] = rec
	return parked, nil
}

// ResetProcessed clears is_processed on live records.
func (r *rawStore) ResetProcessed(_ context.Context, externalIDs []string) (int, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range externalIDs {
		rec, ok := s.raw[id]
		if !ok || rec.IsDeleted || rec.NeedsManualReview {
			continue
		}
		if rec.IsProcessed {
			rec.IsProcessed = false
			s.raw[id] = rec
		}
		n++
	}
	return n, nil
}

// History returns every stored version of a record.
func (r *rawStore) History(_ context.Context, externalID string) ([]domain.RawRecordVersion, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[externalID]
	out := make([]domain.RawRecordVersion, len(h))
	copy(out, h)
	return out, nil
}

// Stats summarises the raw table.
func (r *rawStore) Stats(_ context.Context) (domain.RawStats, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st domain.RawStats
	for _, rec := range s.raw {
		st.Total++
		if rec.IsDeleted {
			st.Deleted++
		}
		if !rec.IsProcessed {
			st.Unprocessed++
		}
		if rec.NeedsManualReview {
			st.ManualReview++
		}
	}
	return st, nil
}
