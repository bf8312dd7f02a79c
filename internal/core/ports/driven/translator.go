package driven

import "context"

// TranslationProvider translates source-language tokens.
//
// Implementations include:
//   - free-web: public web endpoint, best effort
//   - deepl, yandex: API-key-gated services
//   - openai: chat completion returning a JSON mapping
type TranslationProvider interface {
	// Name identifies the provider in dictionary entries and logs.
	Name() string

	// Translate returns a mapping for the tokens it could translate.
	// Tokens missing from the result were not translated.
	Translate(ctx context.Context, tokens []string, sourceLang, targetLang string) (map[string]string, error)
}
