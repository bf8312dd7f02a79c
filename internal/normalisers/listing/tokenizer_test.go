package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

func TestHasHan(t *testing.T) {
	assert.True(t, HasHan("红色"))
	assert.True(t, HasHan("BYD 汉"))
	assert.False(t, HasHan("BYD Han"))
	assert.False(t, HasHan(""))
}

func TestTokens(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"single", "红色", []string{"红色"}},
		{"mixed latin", "BYD 汉 EV", []string{"汉"}},
		{"cjk delimiters", "自动，前驱、四门", []string{"自动", "前驱", "四门"}},
		{"brackets", "宝马（进口）", []string{"宝马", "进口"}},
		{"fullwidth folded", "２.０T 涡轮", []string{"涡轮"}},
		{"no han", "2.0T", nil},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokens(tt.in))
		})
	}
}

func TestTranslator_ReplacesKnownTokens(t *testing.T) {
	dict := domain.NewDictionarySnapshot(1, []domain.TranslationEntry{
		{SourceToken: "自动", SourceLanguage: "zh", CanonicalToken: "автомат"},
		{SourceToken: "前驱", SourceLanguage: "zh", CanonicalToken: "передний привод"},
	})
	tr := newTranslator(dict, "zh")

	got := tr.translate(" 自动，前驱 / 四门 ")

	assert.Equal(t, "автомат,передний привод / 四门", got)
	assert.Equal(t, map[string]struct{}{"四门": {}}, tr.misses)
}

func TestTranslator_LanguageScoped(t *testing.T) {
	dict := domain.NewDictionarySnapshot(1, []domain.TranslationEntry{
		{SourceToken: "红色", SourceLanguage: "ja", CanonicalToken: "red"},
	})
	tr := newTranslator(dict, "zh")

	assert.Equal(t, "红色", tr.translate("红色"))
	assert.Contains(t, tr.misses, "红色")
}

func TestTranslator_NilSnapshot(t *testing.T) {
	tr := newTranslator(nil, "zh")
	assert.Equal(t, "BMW X5", tr.translate("BMW X5"))
	assert.Equal(t, "黑色", tr.translate("黑色"))
	assert.Len(t, tr.misses, 1)
}

func TestSegments_RoundTrip(t *testing.T) {
	in := "a, 红色 (b)"
	var out string
	for _, s := range segments(in) {
		out += s.text
	}
	assert.Equal(t, in, out)
}
