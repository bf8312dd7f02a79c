package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ChangeType represents the kind of change reported by the catalog feed.
type ChangeType int

const (
	// ChangeCreated indicates a new listing ("added").
	ChangeCreated ChangeType = iota

	// ChangeUpdated indicates a modified listing ("changed").
	// Its payload may be partial and is merged onto the stored payload.
	ChangeUpdated

	// ChangeDeleted indicates a removed listing ("removed").
	ChangeDeleted
)

// String returns the feed name of the change type.
func (c ChangeType) String() string {
	switch c {
	case ChangeCreated:
		return "added"
	case ChangeUpdated:
		return "changed"
	case ChangeDeleted:
		return "removed"
	default:
		return "unknown"
	}
}

// ParseChangeType converts a feed change type. Unknown values default to added.
func ParseChangeType(s string) ChangeType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "changed", "updated":
		return ChangeUpdated
	case "removed", "deleted":
		return ChangeDeleted
	default:
		return ChangeCreated
	}
}

// Change is one entity in a catalog diff page.
type Change struct {
	// Type is the kind of change.
	Type ChangeType

	// ExternalID is the catalog identifier (inner_id).
	ExternalID string

	// Payload is the listing data as received.
	Payload map[string]any

	// SourceCreatedAt is the catalog timestamp of the change.
	SourceCreatedAt time.Time
}

// ChangePage is one page of the incremental change feed.
type ChangePage struct {
	Changes []Change

	// CurrentChangeID is the feed position this page was served from.
	CurrentChangeID int64

	// NextChangeID is where the following page starts. Zero means the feed is drained.
	NextChangeID int64
}

// SnapshotPage is one page of a full listing snapshot.
type SnapshotPage struct {
	Page    int
	Records []Change

	// NextPage is zero when the snapshot has no more pages.
	NextPage int
}

// RawRecord holds the as-fetched payload for one catalog entity.
type RawRecord struct {
	ExternalID      string
	Payload         json.RawMessage
	ContentHash     string
	ChangeType      ChangeType
	SourceCreatedAt time.Time
	FirstSeenAt     time.Time
	FetchedAt       time.Time

	// Version increments on every payload change.
	Version int64

	IsDeleted   bool
	IsProcessed bool

	// SkipCount counts consecutive normalisation failures for the current version.
	SkipCount int

	// NeedsManualReview marks a record that exhausted its skip budget.
	NeedsManualReview bool
}

// Decode unmarshals the stored payload.
func (r *RawRecord) Decode() (map[string]any, error) {
	if len(r.Payload) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(r.Payload, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// RawRecordVersion is a historical payload kept for audit and rollback.
type RawRecordVersion struct {
	ExternalID  string
	Version     int64
	ContentHash string
	Payload     json.RawMessage
	RecordedAt  time.Time
}

// SnapshotWindow bounds the records a full snapshot is known to cover.
// Zero bounds are open.
type SnapshotWindow struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t lies inside the window.
func (w SnapshotWindow) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// UpsertStats counts the outcome of one upsert batch.
type UpsertStats struct {
	Created   int
	Updated   int
	Deleted   int
	Unchanged int
	Skipped   int
}

// Add accumulates another batch.
func (s *UpsertStats) Add(o UpsertStats) {
	s.Created += o.Created
	s.Updated += o.Updated
	s.Deleted += o.Deleted
	s.Unchanged += o.Unchanged
	s.Skipped += o.Skipped
}

// Mutations is the number of rows whose content changed.
func (s UpsertStats) Mutations() int {
	return s.Created + s.Updated + s.Deleted
}

// CanonicalPayload encodes a payload deterministically.
// encoding/json sorts map keys, so equal maps encode to equal bytes.
func CanonicalPayload(payload map[string]any) (json.RawMessage, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}

// ContentHash returns the hex SHA-256 of a canonical payload.
func ContentHash(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// MergePayload applies a partial update onto an existing payload.
// Keys prefixed with "new_" replace the unprefixed field.
func MergePayload(existing, update map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(update))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range update {
		if strings.HasPrefix(k, "new_") && len(k) > len("new_") {
			merged[k[len("new_"):]] = v
			continue
		}
		merged[k] = v
	}
	return merged
}

// UpsertOutcome is the effect of one change on the raw store.
type UpsertOutcome int

// Upsert outcomes.
const (
	OutcomeUnchanged UpsertOutcome = iota
	OutcomeCreated
	OutcomeUpdated
	OutcomeDeleted
)

// Count adds one outcome to the stats.
func (s *UpsertStats) Count(o UpsertOutcome) {
	switch o {
	case OutcomeCreated:
		s.Created++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeDeleted:
		s.Deleted++
	default:
		s.Unchanged++
	}
}

// ApplyChange computes the next state of a raw record for one change.
// existing is nil for an unseen id. When the outcome is OutcomeUnchanged the
// returned record is nil and nothing must be written. Every store applies
// changes through this function so hash gating and versioning agree.
func ApplyChange(existing *RawRecord, ch Change, now time.Time) (*RawRecord, UpsertOutcome, error) {
	if ch.ExternalID == "" {
		return nil, OutcomeUnchanged, fmt.Errorf("%w: change without external id", ErrInvalidInput)
	}

	if ch.Type == ChangeDeleted {
		return applyDelete(existing, ch, now)
	}

	payload := ch.Payload
	if ch.Type == ChangeUpdated {
		var base map[string]any
		if existing != nil {
			decoded, err := existing.Decode()
			if err != nil {
				return nil, OutcomeUnchanged, fmt.Errorf("decode stored payload: %w", err)
			}
			base = decoded
		}
		payload = MergePayload(base, ch.Payload)
	}

	canonical, err := CanonicalPayload(payload)
	if err != nil {
		return nil, OutcomeUnchanged, err
	}
	hash := ContentHash(canonical)

	if existing == nil {
		return &RawRecord{
			ExternalID:      ch.ExternalID,
			Payload:         canonical,
			ContentHash:     hash,
			ChangeType:      ch.Type,
			SourceCreatedAt: ch.SourceCreatedAt,
			FirstSeenAt:     now,
			FetchedAt:       now,
			Version:         1,
		}, OutcomeCreated, nil
	}

	if existing.ContentHash == hash && !existing.IsDeleted {
		return nil, OutcomeUnchanged, nil
	}

	next := *existing
	next.ChangeType = ch.Type
	next.FetchedAt = now
	next.IsDeleted = false
	next.IsProcessed = false
	if !ch.SourceCreatedAt.IsZero() {
		next.SourceCreatedAt = ch.SourceCreatedAt
	}
	if existing.ContentHash != hash {
		next.Payload = canonical
		next.ContentHash = hash
		next.Version++
		next.SkipCount = 0
		next.NeedsManualReview = false
	}
	return &next, OutcomeUpdated, nil
}

func applyDelete(existing *RawRecord, ch Change, now time.Time) (*RawRecord, UpsertOutcome, error) {
	if existing == nil {
		canonical, err := CanonicalPayload(ch.Payload)
		if err != nil {
			return nil, OutcomeUnchanged, err
		}
		return &RawRecord{
			ExternalID:      ch.ExternalID,
			Payload:         canonical,
			ContentHash:     ContentHash(canonical),
			ChangeType:      ChangeDeleted,
			SourceCreatedAt: ch.SourceCreatedAt,
			FirstSeenAt:     now,
			FetchedAt:       now,
			Version:         1,
			IsDeleted:       true,
		}, OutcomeDeleted, nil
	}
	if existing.IsDeleted {
		return nil, OutcomeUnchanged, nil
	}

	next := *existing
	next.ChangeType = ChangeDeleted
	next.FetchedAt = now
	next.IsDeleted = true
	next.IsProcessed = false
	return &next, OutcomeDeleted, nil
}

// NewVersion reports whether next carries a payload version that should be
// appended to the record history.
func NewVersion(existing, next *RawRecord) bool {
	if next == nil {
		return false
	}
	return existing == nil || next.Version != existing.Version
}

// MarkDeleted returns the soft-deleted form of a live record.
func MarkDeleted(r RawRecord, now time.Time) RawRecord {
	r.ChangeType = ChangeDeleted
	r.IsDeleted = true
	r.IsProcessed = false
	r.FetchedAt = now
	return r
}

// VersionOf returns the history row for a record's current payload.
func VersionOf(r *RawRecord) RawRecordVersion {
	return RawRecordVersion{
		ExternalID:  r.ExternalID,
		Version:     r.Version,
		ContentHash: r.ContentHash,
		Payload:     r.Payload,
		RecordedAt:  r.FetchedAt,
	}
}
