// Package translation provides the factory for translation provider adapters.
package translation

import (
	"fmt"

	"github.com/custodia-labs/listsync/internal/adapters/driven/translation/deepl"
	"github.com/custodia-labs/listsync/internal/adapters/driven/translation/freeweb"
	"github.com/custodia-labs/listsync/internal/adapters/driven/translation/openai"
	"github.com/custodia-labs/listsync/internal/adapters/driven/translation/transport"
	"github.com/custodia-labs/listsync/internal/adapters/driven/translation/yandex"
	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
)

// NewProvider creates the provider selected in settings.
// Missing credentials yield domain.ErrProviderUnavailable; an unknown
// provider yields domain.ErrUnsupportedType.
func NewProvider(settings domain.TranslationSettings) (driven.TranslationProvider, error) {
	if _, err := transport.ParseLang(settings.SourceLanguage); err != nil {
		return nil, fmt.Errorf("source language: %w", err)
	}
	if _, err := transport.ParseLang(settings.TargetLanguage); err != nil {
		return nil, fmt.Errorf("target language: %w", err)
	}

	switch settings.Provider {
	case domain.ProviderFreeWeb:
		return freeweb.New(freeweb.Config{}), nil

	case domain.ProviderDeepL:
		p, err := deepl.New(deepl.Config{APIKey: settings.DeepLAPIKey})
		if err != nil {
			return nil, err
		}
		return p, nil

	case domain.ProviderYandex:
		p, err := yandex.New(yandex.Config{
			APIKey:   settings.YandexAPIKey,
			FolderID: settings.YandexFolder,
		})
		if err != nil {
			return nil, err
		}
		return p, nil

	case domain.ProviderOpenAI:
		p, err := openai.New(openai.Config{
			APIKey: settings.OpenAIAPIKey,
			Model:  settings.OpenAIModel,
		})
		if err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, fmt.Errorf("%w: translation provider %q", domain.ErrUnsupportedType, settings.Provider)
	}
}
