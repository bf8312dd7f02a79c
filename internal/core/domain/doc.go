// Package domain defines the core business entities for listsync.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - RawRecord: A catalog listing as fetched, with hash and version
//   - ProcessedRecord: The canonical listing derived from a raw record
//   - Cursor / SyncState: Change-feed position per scope
//   - TranslationEntry / DictionarySnapshot: The versioned translation dictionary
//   - OperationLogEntry: One audit row per pipeline stage
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
