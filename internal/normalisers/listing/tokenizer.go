package listing

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

// isDelimiter reports whether r separates tokens. Delimiters are kept in
// the output so translated text keeps its punctuation.
func isDelimiter(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '/', ',', ';', '|', '(', ')', '[', ']', '+',
		'、', '，', '；', '（', '）', '【', '】', '·', '：', ':':
		return true
	}
	return false
}

// HasHan reports whether s contains a Han character.
func HasHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// translator replaces source-language tokens using one dictionary snapshot
// and collects the tokens it could not translate.
type translator struct {
	dict   *domain.DictionarySnapshot
	lang   string
	misses map[string]struct{}
}

func newTranslator(dict *domain.DictionarySnapshot, lang string) *translator {
	return &translator{dict: dict, lang: lang, misses: make(map[string]struct{})}
}

// Tokens splits text into its translatable tokens after NFKC folding.
// Only segments containing Han characters are tokens.
func Tokens(text string) []string {
	var out []string
	for _, seg := range segments(norm.NFKC.String(text)) {
		if !seg.delim && HasHan(seg.text) {
			out = append(out, seg.text)
		}
	}
	return out
}

// translate returns text with every known token replaced by its canonical form.
func (t *translator) translate(text string) string {
	text = strings.TrimSpace(norm.NFKC.String(text))
	if text == "" {
		return ""
	}

	var b strings.Builder
	for _, seg := range segments(text) {
		if seg.delim || !HasHan(seg.text) {
			b.WriteString(seg.text)
			continue
		}
		if canonical, ok := t.dict.Lookup(seg.text, t.lang); ok {
			b.WriteString(canonical)
			continue
		}
		t.misses[seg.text] = struct{}{}
		b.WriteString(seg.text)
	}
	return b.String()
}

type segment struct {
	text  string
	delim bool
}

// segments splits s into alternating runs of delimiters and token text.
func segments(s string) []segment {
	var out []segment
	start := 0
	inDelim := false
	for i, r := range s {
		d := isDelimiter(r)
		if i == 0 {
			inDelim = d
			continue
		}
		if d != inDelim {
			out = append(out, segment{text: s[start:i], delim: inDelim})
			start = i
			inDelim = d
		}
	}
	if start < len(s) {
		out = append(out, segment{text: s[start:], delim: inDelim})
	}
	return out
}
