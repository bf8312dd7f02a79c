// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements every pipeline store
// through a single database file:
//
//   - RawStore: as-fetched payloads, version history and processing flags
//   - ProcessedStore: canonical listings and their untranslated tokens
//   - SyncStateStore: change-feed cursor per scope
//   - LeaseStore: single-run lease
//   - DictionaryStore: translation entries and the dictionary version
//   - OperationsLogStore: append-only run audit
//   - SchedulerStore: serve-mode schedule and run history
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files;
// applied versions are recorded in schema_migrations.
//
// # Data Location
//
// By default, the database is stored at ~/.listsync/data/listsync.db
//
// # Thread Safety
//
// All operations are thread-safe. Transactions begin IMMEDIATE so that
// read-then-write sequences serialise on the SQLite write lock.
package sqlite
