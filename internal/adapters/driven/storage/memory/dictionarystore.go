package memory

import (
	"context"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
)

// dictionaryStore implements driven.DictionaryStore.
type dictionaryStore struct {
	store *Store
}

var _ driven.DictionaryStore = (*dictionaryStore)(nil)

// Load reads every entry and the current version.
func (d *dictionaryStore) Load(_ context.Context) (*domain.DictionarySnapshot, error) {
	s := d.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]domain.TranslationEntry, 0, len(s.dict))
	for _, e := range s.dict {
		entries = append(entries, e)
	}
	return domain.NewDictionarySnapshot(s.dictVer, entries), nil
}

// Apply inserts or replaces entries and bumps the version.
func (d *dictionaryStore) Apply(_ context.Context, entries []domain.TranslationEntry) (int64, error) {
	s := d.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.dict[e.Key()] = e
	}
	s.dictVer++
	return s.dictVer, nil
}

// oplogStore implements driven.OperationsLogStore.
type oplogStore struct {
	store *Store
}

var _ driven.OperationsLogStore = (*oplogStore)(nil)

// Append stores an entry and sets its ID.
func (o *oplogStore) Append(_ context.Context, entry *domain.OperationLogEntry) error {
	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = int64(len(s.oplog) + 1)
	s.oplog = append(s.oplog, *entry)
	return nil
}

// Recent returns the latest entries, most recent first.
func (o *oplogStore) Recent(_ context.Context, limit int) ([]domain.OperationLogEntry, error) {
	s := o.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.OperationLogEntry
	for i := len(s.oplog) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, s.oplog[i])
	}
	return out, nil
}

// ByRun returns the entries of one run in append order.
func (o *oplogStore) ByRun(_ context.Context, runID string) ([]domain.OperationLogEntry, error) {
	s := o.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.OperationLogEntry
	for _, e := range s.oplog {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}
