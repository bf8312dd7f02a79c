package domain

import (
	"strings"
	"time"
)

const unknownDescription = "Unknown"

// ProviderName identifies a translation provider.
type ProviderName string

// Available translation providers.
const (
	// ProviderFreeWeb is the public web translation endpoint. No key required.
	ProviderFreeWeb ProviderName = "free-web"

	// ProviderDeepL is the DeepL API (provider-A).
	ProviderDeepL ProviderName = "deepl"

	// ProviderYandex is the Yandex Cloud translate API (provider-B).
	ProviderYandex ProviderName = "yandex"

	// ProviderOpenAI uses a chat completion model to translate tokens.
	ProviderOpenAI ProviderName = "openai"

	// ProviderManual marks entries imported by an operator.
	ProviderManual ProviderName = "manual"
)

// ParseProviderName accepts provider names and their aliases.
func ParseProviderName(s string) (ProviderName, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free-web", "free", "google":
		return ProviderFreeWeb, true
	case "deepl", "provider-a":
		return ProviderDeepL, true
	case "yandex", "provider-b":
		return ProviderYandex, true
	case "openai":
		return ProviderOpenAI, true
	default:
		return "", false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p ProviderName) RequiresAPIKey() bool {
	return p == ProviderDeepL || p == ProviderYandex || p == ProviderOpenAI
}

// String returns the string representation.
func (p ProviderName) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p ProviderName) Description() string {
	switch p {
	case ProviderFreeWeb:
		return "Free web translation (best effort)"
	case ProviderDeepL:
		return "DeepL API"
	case ProviderYandex:
		return "Yandex Cloud Translate"
	case ProviderOpenAI:
		return "OpenAI chat completion"
	case ProviderManual:
		return "Manual entry"
	default:
		return unknownDescription
	}
}

// AllProviders returns the providers selectable for enrichment.
func AllProviders() []ProviderName {
	return []ProviderName{ProviderFreeWeb, ProviderDeepL, ProviderYandex, ProviderOpenAI}
}

// StorageSettings selects and locates the relational store.
type StorageSettings struct {
	// Driver is "sqlite", "postgres" or "memory" (nothing persisted).
	Driver string

	// Path is the sqlite database file.
	Path string

	// DSN is the postgres connection string.
	DSN string
}

// CatalogSettings configures the upstream catalog API client.
type CatalogSettings struct {
	// BaseURL may contain an {access_name} placeholder.
	BaseURL    string
	APIKey     string
	AccessName string

	// ChangesInterval throttles change-feed page requests.
	ChangesInterval time.Duration

	// OffersInterval throttles snapshot page requests.
	OffersInterval time.Duration

	// Timeout bounds one HTTP request.
	Timeout time.Duration
}

// TranslationSettings configures translation providers.
type TranslationSettings struct {
	Provider       ProviderName
	SourceLanguage string
	TargetLanguage string

	DeepLAPIKey  string
	YandexAPIKey string
	YandexFolder string
	OpenAIAPIKey string
	OpenAIModel  string
}

// APIKey returns the configured key for the selected provider.
func (t TranslationSettings) APIKey() string {
	switch t.Provider {
	case ProviderDeepL:
		return t.DeepLAPIKey
	case ProviderYandex:
		return t.YandexAPIKey
	case ProviderOpenAI:
		return t.OpenAIAPIKey
	default:
		return ""
	}
}

// IsConfigured returns true if the selected provider can be used.
func (t TranslationSettings) IsConfigured() bool {
	if t.Provider.RequiresAPIKey() && t.APIKey() == "" {
		return false
	}
	return t.Provider != ""
}

// NormalizationSettings configures the normalisation batch.
type NormalizationSettings struct {
	BatchSize int

	// MaxSkips is the number of consecutive failures before a record is
	// parked for manual review.
	MaxSkips int
}

// EnrichmentSettings configures the enrichment loop.
type EnrichmentSettings struct {
	MaxIterations int

	// BatchSize is the number of tokens sent per provider call.
	BatchSize int
}

// LeaseSettings configures the single-run lease.
type LeaseSettings struct {
	TTL time.Duration
}

// ServerSettings configures the status HTTP server.
type ServerSettings struct {
	Addr string
}

// Settings holds all resolved pipeline settings.
type Settings struct {
	Storage       StorageSettings
	Catalog       CatalogSettings
	Translation   TranslationSettings
	Retry         RetryPolicy
	Normalization NormalizationSettings
	Enrichment    EnrichmentSettings
	Lease         LeaseSettings
	Server        ServerSettings

	// TestMode shortens retry waits for local runs.
	TestMode bool
}

// DefaultSettings returns settings with sensible defaults.
// Credentials are left empty and must come from the environment or config file.
func DefaultSettings() Settings {
	return Settings{
		Storage: StorageSettings{
			Driver: "sqlite",
		},
		Catalog: CatalogSettings{
			BaseURL:         "https://{access_name}.auto-parser.ru/api/v2/che168",
			ChangesInterval: 2 * time.Second,
			OffersInterval:  700 * time.Millisecond,
			Timeout:         30 * time.Second,
		},
		Translation: TranslationSettings{
			Provider:       ProviderFreeWeb,
			SourceLanguage: "zh",
			TargetLanguage: "ru",
			OpenAIModel:    "gpt-4o-mini",
		},
		Retry: DefaultRetryPolicy(),
		Normalization: NormalizationSettings{
			BatchSize: 200,
			MaxSkips:  3,
		},
		Enrichment: EnrichmentSettings{
			MaxIterations: 10,
			BatchSize:     50,
		},
		Lease: LeaseSettings{
			TTL: 30 * time.Minute,
		},
		Server: ServerSettings{
			Addr: ":8080",
		},
	}
}

// TestRetryPolicy is the short retry policy used in test mode.
func TestRetryPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxAttempts = 3
	p.Backoff = 5 * time.Second
	p.MaxBackoff = 5 * time.Second
	p.RateLimitBackoff = 5 * time.Second
	p.TotalTimeout = time.Minute
	return p
}
