// Package deepl provides a translation provider backed by the DeepL API.
package deepl

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/custodia-labs/listsync/internal/adapters/driven/translation/transport"
	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.TranslationProvider = (*Provider)(nil)

// Default configuration values.
const (
	FreeBaseURL     = "https://api-free.deepl.com/v2"
	ProBaseURL      = "https://api.deepl.com/v2"
	DefaultInterval = 200 * time.Millisecond

	// MaxTexts is the number of texts DeepL accepts per request.
	MaxTexts = 50
)

// Config holds configuration for the DeepL provider.
type Config struct {
	// APIKey is the DeepL authentication key (required).
	APIKey string

	// BaseURL overrides the endpoint. Keys ending in ":fx" use the free API.
	BaseURL string

	// Interval is the minimum gap between requests (default: 200ms).
	Interval time.Duration

	// Timeout is the request timeout.
	Timeout time.Duration
}

// Provider translates through DeepL.
type Provider struct {
	client  *transport.Client
	baseURL string
	apiKey  string
}

type translateResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

// New creates a DeepL provider.
func New(cfg Config) (*Provider, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, transport.Unavailable(domain.ProviderDeepL, "an API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = ProBaseURL
		if strings.HasSuffix(cfg.APIKey, ":fx") {
			cfg.BaseURL = FreeBaseURL
		}
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	return &Provider{
		client:  transport.New(string(domain.ProviderDeepL), cfg.Timeout, cfg.Interval),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return string(domain.ProviderDeepL)
}

// Translate sends tokens in batches of MaxTexts. Any failed batch fails the call.
func (p *Provider) Translate(ctx context.Context, tokens []string, sourceLang, targetLang string) (map[string]string, error) {
	src, err := transport.ParseLang(sourceLang)
	if err != nil {
		return nil, err
	}
	tgt, err := transport.ParseLang(targetLang)
	if err != nil {
		return nil, err
	}

	got := make(map[string]string, len(tokens))
	for _, chunk := range transport.Chunks(tokens, MaxTexts) {
		texts, err := p.translateBatch(ctx, chunk, sourceCode(src), targetCode(tgt))
		if err != nil {
			return nil, err
		}
		for i, tok := range chunk {
			if i < len(texts) {
				got[tok] = texts[i]
			}
		}
	}

	return transport.Filter(tokens, got, src, tgt), nil
}

func (p *Provider) translateBatch(ctx context.Context, texts []string, source, target string) ([]string, error) {
	form := url.Values{
		"text":        texts,
		"source_lang": {source},
		"target_lang": {target},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/translate", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+p.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp translateResponse
	if err := p.client.Do(req, &resp); err != nil {
		return nil, err
	}

	out := make([]string, len(resp.Translations))
	for i, t := range resp.Translations {
		out[i] = t.Text
	}
	return out, nil
}

// sourceCode returns the DeepL source code, which has no regional variants.
func sourceCode(l transport.Lang) string {
	return strings.ToUpper(l.Base)
}

// targetCode returns the DeepL target code. English and Portuguese
// require a regional variant.
func targetCode(l transport.Lang) string {
	region, conf := l.Tag.Region()
	switch l.Base {
	case "en":
		if conf == language.Exact && region.String() == "GB" {
			return "EN-GB"
		}
		return "EN-US"
	case "pt":
		if conf == language.Exact && region.String() == "PT" {
			return "PT-PT"
		}
		return "PT-BR"
	default:
		return strings.ToUpper(l.Base)
	}
}
