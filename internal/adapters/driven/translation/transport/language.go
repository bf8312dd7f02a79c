package transport

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/language"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

// Lang is a validated language code.
type Lang struct {
	Tag  language.Tag
	Base string
}

// ParseLang validates a BCP 47 code such as "zh", "ru" or "en-GB".
func ParseLang(code string) (Lang, error) {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil || tag == language.Und {
		return Lang{}, fmt.Errorf("%w: language %q", domain.ErrInvalidInput, code)
	}
	base, _ := tag.Base()
	return Lang{Tag: tag, Base: base.String()}, nil
}

// scriptTables maps ISO 15924 scripts to the runes that identify them.
var scriptTables = map[string][]*unicode.RangeTable{
	"Hans": {unicode.Han},
	"Hant": {unicode.Han},
	"Hani": {unicode.Han},
	"Jpan": {unicode.Han, unicode.Hiragana, unicode.Katakana},
	"Kore": {unicode.Hangul, unicode.Han},
	"Cyrl": {unicode.Cyrillic},
	"Arab": {unicode.Arabic},
	"Grek": {unicode.Greek},
	"Hebr": {unicode.Hebrew},
	"Thai": {unicode.Thai},
}

// sourceScript returns the rune tables of the source language's script when
// it differs from the target's. Nil means no script check applies.
func sourceScript(source, target Lang) []*unicode.RangeTable {
	ss, _ := source.Tag.Script()
	ts, _ := target.Tag.Script()
	if ss == ts {
		return nil
	}
	return scriptTables[ss.String()]
}

// Filter keeps the translations of tokens that are real translations:
// non-empty, different from the token, and free of source-script runes
// when the two languages are written in different scripts.
func Filter(tokens []string, got map[string]string, source, target Lang) map[string]string {
	tables := sourceScript(source, target)
	out := make(map[string]string, len(got))
	for _, tok := range tokens {
		v, ok := got[tok]
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" || strings.EqualFold(v, strings.TrimSpace(tok)) {
			continue
		}
		if tables != nil && containsAny(v, tables) {
			continue
		}
		out[tok] = v
	}
	return out
}

func containsAny(s string, tables []*unicode.RangeTable) bool {
	for _, r := range s {
		if unicode.In(r, tables...) {
			return true
		}
	}
	return false
}
