// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - CatalogClient: Reads change pages and snapshot pages from the catalog
//   - RawStore: Raw record persistence with hash-gated upserts and soft deletion
//   - ProcessedStore: Canonical record persistence
//   - SyncStateStore: Change-feed cursor persistence
//   - LeaseStore: Single-run lease
//   - DictionaryStore: Translation dictionary persistence
//   - OperationsLogStore: Append-only run audit
//   - Normaliser: Raw record to canonical record
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
//   - TranslationProvider: Without it, enrichment is skipped and records
//     with untranslated tokens stay pending.
//   - SchedulerStore: Only used by serve mode.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
