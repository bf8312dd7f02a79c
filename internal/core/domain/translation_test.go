package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDictionarySnapshot_Lookup(t *testing.T) {
	s := NewDictionarySnapshot(3, []TranslationEntry{
		{SourceToken: "红色", SourceLanguage: "zh", CanonicalToken: "красный"},
		{SourceToken: "白色", SourceLanguage: "zh", CanonicalToken: "белый"},
	})

	got, ok := s.Lookup("红色", "zh")
	assert.True(t, ok)
	assert.Equal(t, "красный", got)

	_, ok = s.Lookup("红色", "ja")
	assert.False(t, ok)

	assert.Equal(t, int64(3), s.Version())
	assert.Equal(t, 2, s.Len())
}

func TestDictionarySnapshot_Nil(t *testing.T) {
	var s *DictionarySnapshot
	_, ok := s.Lookup("x", "zh")
	assert.False(t, ok)
	assert.Zero(t, s.Version())
	assert.Zero(t, s.Len())
	assert.Nil(t, s.Entries())

	next := s.With(1, []TranslationEntry{{SourceToken: "x", SourceLanguage: "zh", CanonicalToken: "y"}})
	assert.Equal(t, 1, next.Len())
}

func TestDictionarySnapshot_WithIsCopyOnWrite(t *testing.T) {
	base := NewDictionarySnapshot(1, []TranslationEntry{
		{SourceToken: "a", SourceLanguage: "zh", CanonicalToken: "A"},
	})
	next := base.With(2, []TranslationEntry{
		{SourceToken: "a", SourceLanguage: "zh", CanonicalToken: "AA"},
		{SourceToken: "b", SourceLanguage: "zh", CanonicalToken: "B"},
	})

	got, _ := base.Lookup("a", "zh")
	assert.Equal(t, "A", got)
	assert.Equal(t, 1, base.Len())

	got, _ = next.Lookup("a", "zh")
	assert.Equal(t, "AA", got)
	assert.Equal(t, 2, next.Len())
	assert.Equal(t, int64(2), next.Version())
}

func TestDictionarySnapshot_EntriesSorted(t *testing.T) {
	s := NewDictionarySnapshot(1, []TranslationEntry{
		{SourceToken: "b", SourceLanguage: "zh"},
		{SourceToken: "a", SourceLanguage: "zh"},
		{SourceToken: "c", SourceLanguage: "ja"},
	})
	entries := s.Entries()
	assert.Equal(t, "c", entries[0].SourceToken)
	assert.Equal(t, "a", entries[1].SourceToken)
	assert.Equal(t, "b", entries[2].SourceToken)
}

func TestMergeResult(t *testing.T) {
	var r MergeResult
	assert.False(t, r.Changed())

	r.Added = []TranslationEntry{{SourceToken: "a"}}
	r.Overwritten = []TranslationEntry{{SourceToken: "b"}}
	assert.True(t, r.Changed())
	assert.Equal(t, []string{"a", "b"}, r.Tokens())
}

func TestDictionaryConflict_Error(t *testing.T) {
	c := DictionaryConflict{
		Existing: TranslationEntry{SourceToken: "红色", SourceLanguage: "zh", CanonicalToken: "красный", Provider: "manual"},
		Rejected: TranslationEntry{SourceToken: "红色", SourceLanguage: "zh", CanonicalToken: "алый", Provider: "deepl"},
	}
	assert.Contains(t, c.Error(), `keeping "красный" from manual`)
	assert.Contains(t, c.Error(), `rejected "алый" from deepl`)
}
