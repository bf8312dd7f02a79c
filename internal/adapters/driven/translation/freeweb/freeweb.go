// Package freeweb translates through the public Google web endpoint.
// It needs no credential and offers no service guarantee.
package freeweb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/listsync/internal/adapters/driven/translation/transport"
	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
	"github.com/custodia-labs/listsync/internal/logger"
)

// Ensure Provider implements the interface.
var _ driven.TranslationProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultBaseURL  = "https://translate.googleapis.com/translate_a/single"
	DefaultInterval = 100 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
)

// Config holds configuration for the free web provider.
type Config struct {
	// BaseURL is the endpoint (default: translate.googleapis.com).
	BaseURL string

	// Interval is the minimum gap between requests (default: 100ms).
	Interval time.Duration

	// Timeout is the request timeout (default: 10s).
	Timeout time.Duration
}

// Provider translates one token per request.
type Provider struct {
	client  *transport.Client
	baseURL string
}

// New creates a free web provider.
func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Provider{
		client:  transport.New(string(domain.ProviderFreeWeb), cfg.Timeout, cfg.Interval),
		baseURL: cfg.BaseURL,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return string(domain.ProviderFreeWeb)
}

// Translate translates tokens one at a time. A token the endpoint rejects
// is skipped. When a request fails after some tokens succeeded, the partial
// result is returned and the rest are left for the next round.
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
	for _, tok := range tokens {
		text, err := p.translateOne(ctx, tok, src.Base, tgt.Base)
		if err != nil {
			if transport.Cancelled(ctx, err) {
				return nil, err
			}
			if errors.Is(err, domain.ErrInvalidRequest) {
				logger.Debug("free-web: %q rejected: %v", tok, err)
				continue
			}
			if len(got) == 0 {
				return nil, err
			}
			logger.Debug("free-web: stopping after %d of %d tokens: %v", len(got), len(tokens), err)
			break
		}
		got[tok] = text
	}

	return transport.Filter(tokens, got, src, tgt), nil
}

// translateOne returns the concatenated translated segments of text.
// The response is a nested array whose first element lists
// [translated, original, ...] segments.
func (p *Provider) translateOne(ctx context.Context, text, sl, tl string) (string, error) {
	q := url.Values{
		"client": {"gtx"},
		"sl":     {sl},
		"tl":     {tl},
		"dt":     {"t"},
		"q":      {text},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	var resp []any
	if err := p.client.Do(req, &resp); err != nil {
		return "", err
	}

	if len(resp) == 0 {
		return "", nil
	}
	segments, _ := resp[0].([]any)
	var b strings.Builder
	for _, seg := range segments {
		parts, ok := seg.([]any)
		if !ok || len(parts) == 0 {
			continue
		}
		if s, ok := parts[0].(string); ok {
			b.WriteString(s)
		}
	}
	return b.String(), nil
}
