package memory

import (
	"context"
	"sort"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
)

// processedStore implements driven.ProcessedStore.
type processedStore struct {
	store *Store
}

var _ driven.ProcessedStore = (*processedStore)(nil)

// Save replaces a processed record and optionally marks the raw record processed.
func (p *processedStore) Save(_ context.Context, rec *domain.ProcessedRecord, markProcessed bool) error {
	s := p.store
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.raw[rec.ExternalID]
	if !ok || raw.Version != rec.SourceVersion {
		return domain.ErrVersionConflict
	}
	if markProcessed {
		raw.IsProcessed = true
		raw.SkipCount = 0
		s.raw[rec.ExternalID] = raw
	}
	s.processed[rec.ExternalID] = cloneProcessed(*rec)
	return nil
}

// Deactivate excludes a record from active queries.
func (p *processedStore) Deactivate(_ context.Context, externalID string, rawVersion int64) error {
	s := p.store
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.raw[externalID]
	if !ok || raw.Version != rawVersion || !raw.IsDeleted {
		return domain.ErrVersionConflict
	}
	raw.IsProcessed = true
	s.raw[externalID] = raw

	if rec, ok := s.processed[externalID]; ok {
		rec.Active = false
		s.processed[externalID] = rec
	}
	return nil
}

// Get retrieves a processed record.
func (p *processedStore) Get(_ context.Context, externalID string) (*domain.ProcessedRecord, error) {
	s := p.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.processed[externalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneProcessed(rec)
	return &out, nil
}

// ListActive returns active records after afterID.
func (p *processedStore) ListActive(_ context.Context, afterID string, limit int) ([]domain.ProcessedRecord, error) {
	s := p.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ProcessedRecord
	for id, rec := range s.processed {
		if rec.Active && id > afterID {
			out = append(out, cloneProcessed(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Gaps counts untranslated tokens across active records.
func (p *processedStore) Gaps(_ context.Context) (map[string]int, error) {
	s := p.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	gaps := make(map[string]int)
	for _, rec := range s.processed {
		if !rec.Active || !rec.HasUntranslated {
			continue
		}
		for _, tok := range rec.UntranslatedTokens {
			gaps[tok]++
		}
	}
	return gaps, nil
}

// IDsWithTokens returns active records containing any of tokens.
func (p *processedStore) IDsWithTokens(_ context.Context, tokens []string) ([]string, error) {
	want := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		want[t] = struct{}{}
	}

	s := p.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, rec := range s.processed {
		if !rec.Active {
			continue
		}
		for _, tok := range rec.UntranslatedTokens {
			if _, ok := want[tok]; ok {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Stats summarises the processed table.
func (p *processedStore) Stats(_ context.Context) (domain.ProcessedStats, error) {
	s := p.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st domain.ProcessedStats
	for _, rec := range s.processed {
		st.Total++
		if rec.Active {
			st.Active++
			if rec.HasUntranslated {
				st.Untranslated++
			}
		}
	}
	return st, nil
}

func cloneProcessed(rec domain.ProcessedRecord) domain.ProcessedRecord {
	rec.UntranslatedTokens = append([]string(nil), rec.UntranslatedTokens...)
	return rec
}
