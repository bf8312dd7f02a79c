package memory

import (
	"sync"
	"time"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
)

// Store is an in-memory implementation of every record store. A single
// lock covers all tables so that cross-table writes (processed save plus
// raw flag) are atomic, as they are in the SQL stores.
type Store struct {
	mu sync.RWMutex

	raw       map[string]domain.RawRecord
	history   map[string][]domain.RawRecordVersion
	processed map[string]domain.ProcessedRecord
	states    map[string]domain.SyncState
	leases    map[string]domain.Lease
	dict      map[domain.DictionaryKey]domain.TranslationEntry
	dictVer   int64
	oplog     []domain.OperationLogEntry
	schedules map[string]domain.ScheduleState
	runs      []domain.ScheduledRun

	now func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		raw:       make(map[string]domain.RawRecord),
		history:   make(map[string][]domain.RawRecordVersion),
		processed: make(map[string]domain.ProcessedRecord),
		states:    make(map[string]domain.SyncState),
		leases:    make(map[string]domain.Lease),
		dict:      make(map[domain.DictionaryKey]domain.TranslationEntry),
		schedules: make(map[string]domain.ScheduleState),
		now:       time.Now,
	}
}

// SetClock replaces the store's time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// RawStore returns a RawStore interface backed by this store.
func (s *Store) RawStore() driven.RawStore {
	return &rawStore{store: s}
}

// ProcessedStore returns a ProcessedStore interface backed by this store.
func (s *Store) ProcessedStore() driven.ProcessedStore {
	return &processedStore{store: s}
}

// SyncStateStore returns a SyncStateStore interface backed by this store.
func (s *Store) SyncStateStore() driven.SyncStateStore {
	return &syncStateStore{store: s}
}

// LeaseStore returns a LeaseStore interface backed by this store.
func (s *Store) LeaseStore() driven.LeaseStore {
	return &leaseStore{store: s}
}

// DictionaryStore returns a DictionaryStore interface backed by this store.
func (s *Store) DictionaryStore() driven.DictionaryStore {
	return &dictionaryStore{store: s}
}

// OperationsLogStore returns an OperationsLogStore interface backed by this store.
func (s *Store) OperationsLogStore() driven.OperationsLogStore {
	return &oplogStore{store: s}
}

// SchedulerStore returns a SchedulerStore interface backed by this store.
func (s *Store) SchedulerStore() driven.SchedulerStore {
	return &schedulerStore{store: s}
}

// Close is a no-op; contents are lost with the process.
func (s *Store) Close() error {
	return nil
}
