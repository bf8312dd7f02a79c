// Package yandex provides a translation provider backed by Yandex Cloud Translate.
package yandex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/listsync/internal/adapters/driven/translation/transport"
	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.TranslationProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultBaseURL  = "https://translate.api.cloud.yandex.net/translate/v2"
	DefaultInterval = 100 * time.Millisecond

	// MaxTexts keeps each request well under the 10000 character limit.
	MaxTexts = 100
)

// Config holds configuration for the Yandex provider.
type Config struct {
	// APIKey is a service account API key (required).
	APIKey string

	// FolderID is required for user accounts, optional for service accounts.
	FolderID string

	BaseURL  string
	Interval time.Duration
	Timeout  time.Duration
}

// Provider translates through Yandex Cloud Translate.
type Provider struct {
	client   *transport.Client
	baseURL  string
	apiKey   string
	folderID string
}

type translateRequest struct {
	SourceLanguageCode string   `json:"sourceLanguageCode"`
	TargetLanguageCode string   `json:"targetLanguageCode"`
	Format             string   `json:"format"`
	Texts              []string `json:"texts"`
	FolderID           string   `json:"folderId,omitempty"`
}

type translateResponse struct {
	Translations []struct {
		Text                 string `json:"text"`
		DetectedLanguageCode string `json:"detectedLanguageCode"`
	} `json:"translations"`
}

// New creates a Yandex provider.
func New(cfg Config) (*Provider, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, transport.Unavailable(domain.ProviderYandex, "an API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	return &Provider{
		client:   transport.New(string(domain.ProviderYandex), cfg.Timeout, cfg.Interval),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		folderID: strings.TrimSpace(cfg.FolderID),
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return string(domain.ProviderYandex)
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
		resp, err := p.translateBatch(ctx, translateRequest{
			SourceLanguageCode: src.Base,
			TargetLanguageCode: tgt.Base,
			Format:             "PLAIN_TEXT",
			Texts:              chunk,
			FolderID:           p.folderID,
		})
		if err != nil {
			return nil, err
		}
		for i, tok := range chunk {
			if i < len(resp.Translations) {
				got[tok] = resp.Translations[i].Text
			}
		}
	}

	return transport.Filter(tokens, got, src, tgt), nil
}

func (p *Provider) translateBatch(ctx context.Context, body translateRequest) (*translateResponse, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/translate", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Api-Key "+p.apiKey)

	var resp translateResponse
	if err := p.client.Do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
