package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChangeType(t *testing.T) {
	assert.Equal(t, ChangeCreated, ParseChangeType("added"))
	assert.Equal(t, ChangeUpdated, ParseChangeType("changed"))
	assert.Equal(t, ChangeUpdated, ParseChangeType(" Updated "))
	assert.Equal(t, ChangeDeleted, ParseChangeType("removed"))
	assert.Equal(t, ChangeCreated, ParseChangeType("something"))
}

func TestChangeType_String(t *testing.T) {
	assert.Equal(t, "added", ChangeCreated.String())
	assert.Equal(t, "changed", ChangeUpdated.String())
	assert.Equal(t, "removed", ChangeDeleted.String())
	assert.Equal(t, "unknown", ChangeType(7).String())
}

func TestCanonicalPayload_KeyOrderIndependent(t *testing.T) {
	a, err := CanonicalPayload(map[string]any{"b": 1, "a": "x", "c": map[string]any{"z": 1, "y": 2}})
	require.NoError(t, err)
	b, err := CanonicalPayload(map[string]any{"c": map[string]any{"y": 2, "z": 1}, "a": "x", "b": 1})
	require.NoError(t, err)

	assert.Equal(t, string(a), string(b))
	assert.Equal(t, ContentHash(a), ContentHash(b))
	assert.Len(t, ContentHash(a), 64)
}

func TestCanonicalPayload_Nil(t *testing.T) {
	b, err := CanonicalPayload(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))
}

func TestMergePayload(t *testing.T) {
	existing := map[string]any{"price": 100, "color": "红色", "year": 2019}
	update := map[string]any{"new_price": 90, "km_age": 1000}

	merged := MergePayload(existing, update)

	assert.Equal(t, 90, merged["price"])
	assert.Equal(t, "红色", merged["color"])
	assert.Equal(t, 1000, merged["km_age"])
	assert.NotContains(t, merged, "new_price")
	assert.Equal(t, 100, existing["price"], "existing payload must not be mutated")
}

func TestRawRecord_Decode(t *testing.T) {
	r := RawRecord{Payload: []byte(`{"mark":"BYD"}`)}
	m, err := r.Decode()
	require.NoError(t, err)
	assert.Equal(t, "BYD", m["mark"])

	empty := RawRecord{}
	m, err = empty.Decode()
	require.NoError(t, err)
	assert.Empty(t, m)

	null := RawRecord{Payload: []byte(`null`)}
	m, err = null.Decode()
	require.NoError(t, err)
	assert.NotNil(t, m)

	bad := RawRecord{Payload: []byte(`[1,2]`)}
	_, err = bad.Decode()
	assert.Error(t, err)
}

func TestSnapshotWindow_Contains(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	w := SnapshotWindow{From: from, To: to}

	assert.True(t, w.Contains(from))
	assert.True(t, w.Contains(from.Add(24*time.Hour)))
	assert.False(t, w.Contains(to))
	assert.False(t, w.Contains(from.Add(-time.Second)))
	assert.True(t, SnapshotWindow{}.Contains(time.Time{}))
}

func TestUpsertStats(t *testing.T) {
	s := UpsertStats{Created: 1, Unchanged: 4}
	s.Add(UpsertStats{Updated: 2, Deleted: 1, Skipped: 3})

	assert.Equal(t, UpsertStats{Created: 1, Updated: 2, Deleted: 1, Unchanged: 4, Skipped: 3}, s)
	assert.Equal(t, 4, s.Mutations())
}

func TestApplyChange_Insert(t *testing.T) {
	now := time.Now()
	rec, outcome, err := ApplyChange(nil, Change{
		Type:       ChangeCreated,
		ExternalID: "1",
		Payload:    map[string]any{"mark": "BYD"},
	}, now)

	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	assert.Equal(t, int64(1), rec.Version)
	assert.False(t, rec.IsProcessed)
	assert.False(t, rec.IsDeleted)
	assert.Equal(t, now, rec.FirstSeenAt)
	assert.JSONEq(t, `{"mark":"BYD"}`, string(rec.Payload))
}

func TestApplyChange_SameHashIsNoop(t *testing.T) {
	rec, _, err := ApplyChange(nil, Change{ExternalID: "1", Payload: map[string]any{"a": 1}}, time.Now())
	require.NoError(t, err)
	rec.IsProcessed = true

	next, outcome, err := ApplyChange(rec, Change{ExternalID: "1", Payload: map[string]any{"a": 1}}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Nil(t, next)
	assert.False(t, NewVersion(rec, next))
}

func TestApplyChange_ChangedHashBumpsVersion(t *testing.T) {
	rec, _, _ := ApplyChange(nil, Change{ExternalID: "1", Payload: map[string]any{"a": 1}}, time.Now())
	rec.IsProcessed = true
	rec.SkipCount = 2
	rec.NeedsManualReview = true

	next, outcome, err := ApplyChange(rec, Change{ExternalID: "1", Payload: map[string]any{"a": 2}}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, int64(2), next.Version)
	assert.False(t, next.IsProcessed)
	assert.Zero(t, next.SkipCount)
	assert.False(t, next.NeedsManualReview)
	assert.True(t, NewVersion(rec, next))
	assert.Equal(t, int64(1), rec.Version, "existing record must not be mutated")
}

func TestApplyChange_PartialUpdateMerges(t *testing.T) {
	rec, _, _ := ApplyChange(nil, Change{ExternalID: "1", Payload: map[string]any{"price": 100.0, "color": "red"}}, time.Now())

	next, outcome, err := ApplyChange(rec, Change{
		Type:       ChangeUpdated,
		ExternalID: "1",
		Payload:    map[string]any{"new_price": 90.0},
	}, time.Now())

	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.JSONEq(t, `{"price":90,"color":"red"}`, string(next.Payload))
}

func TestApplyChange_DeleteKnown(t *testing.T) {
	rec, _, _ := ApplyChange(nil, Change{ExternalID: "1", Payload: map[string]any{"a": 1}}, time.Now())
	rec.IsProcessed = true

	next, outcome, err := ApplyChange(rec, Change{Type: ChangeDeleted, ExternalID: "1"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, outcome)
	assert.True(t, next.IsDeleted)
	assert.False(t, next.IsProcessed)
	assert.Equal(t, rec.Payload, next.Payload, "payload is retained on soft delete")
	assert.Equal(t, rec.Version, next.Version)

	again, outcome, err := ApplyChange(next, Change{Type: ChangeDeleted, ExternalID: "1"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Nil(t, again)
}

func TestApplyChange_DeleteUnknownInsertsDeleted(t *testing.T) {
	next, outcome, err := ApplyChange(nil, Change{Type: ChangeDeleted, ExternalID: "9"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, outcome)
	assert.True(t, next.IsDeleted)
	assert.Equal(t, int64(1), next.Version)
}

func TestApplyChange_ReappearingRecordIsRevived(t *testing.T) {
	rec, _, _ := ApplyChange(nil, Change{ExternalID: "1", Payload: map[string]any{"a": 1}}, time.Now())
	deleted, _, _ := ApplyChange(rec, Change{Type: ChangeDeleted, ExternalID: "1"}, time.Now())

	next, outcome, err := ApplyChange(deleted, Change{ExternalID: "1", Payload: map[string]any{"a": 1}}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.False(t, next.IsDeleted)
	assert.Equal(t, int64(1), next.Version)
}

func TestApplyChange_MissingID(t *testing.T) {
	_, _, err := ApplyChange(nil, Change{}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpsertStats_Count(t *testing.T) {
	var s UpsertStats
	for _, o := range []UpsertOutcome{OutcomeCreated, OutcomeUpdated, OutcomeDeleted, OutcomeUnchanged, OutcomeUnchanged} {
		s.Count(o)
	}
	assert.Equal(t, UpsertStats{Created: 1, Updated: 1, Deleted: 1, Unchanged: 2}, s)
}

func TestMarkDeleted(t *testing.T) {
	r := MarkDeleted(RawRecord{ExternalID: "1", IsProcessed: true}, time.Now())
	assert.True(t, r.IsDeleted)
	assert.False(t, r.IsProcessed)
	assert.Equal(t, ChangeDeleted, r.ChangeType)
}
