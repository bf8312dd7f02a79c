package domain

import (
	"fmt"
	"sort"
	"time"
)

// TranslationEntry maps one source-language token to its canonical value.
type TranslationEntry struct {
	SourceToken    string `yaml:"source"`
	SourceLanguage string `yaml:"lang,omitempty"`
	CanonicalToken string `yaml:"target"`

	// Provider names the translation source ("manual", "deepl", ...).
	Provider string    `yaml:"provider,omitempty"`
	AddedAt  time.Time `yaml:"added_at,omitempty"`
}

// DictionaryKey is the unique key of an entry.
type DictionaryKey struct {
	Token    string
	Language string
}

// Key returns the entry's unique key.
func (e TranslationEntry) Key() DictionaryKey {
	return DictionaryKey{Token: e.SourceToken, Language: e.SourceLanguage}
}

// DictionarySnapshot is an immutable view of the dictionary at one version.
// Readers hold a snapshot while the dictionary swaps in newer ones.
type DictionarySnapshot struct {
	version int64
	entries map[DictionaryKey]TranslationEntry
}

// NewDictionarySnapshot copies entries into a new snapshot.
func NewDictionarySnapshot(version int64, entries []TranslationEntry) *DictionarySnapshot {
	m := make(map[DictionaryKey]TranslationEntry, len(entries))
	for _, e := range entries {
		m[e.Key()] = e
	}
	return &DictionarySnapshot{version: version, entries: m}
}

// Version returns the snapshot version.
func (s *DictionarySnapshot) Version() int64 {
	if s == nil {
		return 0
	}
	return s.version
}

// Len returns the number of entries.
func (s *DictionarySnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Lookup returns the canonical token for (token, language).
func (s *DictionarySnapshot) Lookup(token, language string) (string, bool) {
	if s == nil {
		return "", false
	}
	e, ok := s.entries[DictionaryKey{Token: token, Language: language}]
	if !ok {
		return "", false
	}
	return e.CanonicalToken, true
}

// Get returns the full entry for a key.
func (s *DictionarySnapshot) Get(key DictionaryKey) (TranslationEntry, bool) {
	if s == nil {
		return TranslationEntry{}, false
	}
	e, ok := s.entries[key]
	return e, ok
}

// Entries returns all entries sorted by language then token.
func (s *DictionarySnapshot) Entries() []TranslationEntry {
	if s == nil {
		return nil
	}
	out := make([]TranslationEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceLanguage != out[j].SourceLanguage {
			return out[i].SourceLanguage < out[j].SourceLanguage
		}
		return out[i].SourceToken < out[j].SourceToken
	})
	return out
}

// With returns a new snapshot with entries applied on top of s.
func (s *DictionarySnapshot) With(version int64, entries []TranslationEntry) *DictionarySnapshot {
	m := make(map[DictionaryKey]TranslationEntry, s.Len()+len(entries))
	if s != nil {
		for k, v := range s.entries {
			m[k] = v
		}
	}
	for _, e := range entries {
		m[e.Key()] = e
	}
	return &DictionarySnapshot{version: version, entries: m}
}

// DictionaryConflict records a provider value rejected in favour of an existing entry.
type DictionaryConflict struct {
	Existing TranslationEntry
	Rejected TranslationEntry
}

func (c DictionaryConflict) Error() string {
	return fmt.Sprintf("dictionary conflict for %q (%s): keeping %q from %s, rejected %q from %s",
		c.Existing.SourceToken, c.Existing.SourceLanguage,
		c.Existing.CanonicalToken, c.Existing.Provider,
		c.Rejected.CanonicalToken, c.Rejected.Provider)
}

// MergeResult summarises a dictionary merge.
type MergeResult struct {
	Version     int64
	Added       []TranslationEntry
	Overwritten []TranslationEntry
	Conflicts   []DictionaryConflict
}

// Changed reports whether the merge produced a new version.
func (r MergeResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Overwritten) > 0
}

// Tokens returns the source tokens that were added or overwritten.
func (r MergeResult) Tokens() []string {
	out := make([]string, 0, len(r.Added)+len(r.Overwritten))
	for _, e := range r.Added {
		out = append(out, e.SourceToken)
	}
	for _, e := range r.Overwritten {
		out = append(out, e.SourceToken)
	}
	return out
}
