// Package openai provides a translation provider using the OpenAI chat completion API.
package openai

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
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 120 * time.Second

	// MaxTokens is the number of source tokens sent per completion.
	MaxTokens = 100
)

// Config holds configuration for the OpenAI provider.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Model is the chat model to use (default: gpt-4o-mini).
	Model string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// Provider asks a chat model for a JSON object mapping each token to its translation.
type Provider struct {
	client  *transport.Client
	baseURL string
	apiKey  string
	model   string
}

// chatCompletionRequest is the OpenAI /chat/completions request format.
type chatCompletionRequest struct {
	Model          string              `json:"model"`
	Messages       []chatCompletionMsg `json:"messages"`
	Temperature    float64             `json:"temperature"`
	ResponseFormat *responseFormat     `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatCompletionMsg is the OpenAI chat message format.
type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionResponse is the OpenAI /chat/completions response format.
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// systemPrompt is formatted with the source and target language codes.
const systemPrompt = `You translate short terms from used-car listings from language %q into language %q.
Reply with a single JSON object whose keys are the input terms exactly as given and whose values are their translations.
Use established names for car makes, models and technical terms. Omit any term you cannot translate.`

// New creates an OpenAI provider.
func New(cfg Config) (*Provider, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, transport.Unavailable(domain.ProviderOpenAI, "an API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Provider{
		client:  transport.New(string(domain.ProviderOpenAI), cfg.Timeout, 0),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return string(domain.ProviderOpenAI)
}

// Model returns the chat model in use.
func (p *Provider) Model() string {
	return p.model
}

// Translate sends tokens in batches of MaxTokens. Keys the model invents
// or drops are ignored.
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
	for _, chunk := range transport.Chunks(tokens, MaxTokens) {
		mapping, err := p.translateBatch(ctx, chunk, src.Tag.String(), tgt.Tag.String())
		if err != nil {
			return nil, err
		}
		for k, v := range mapping {
			got[k] = v
		}
	}

	return transport.Filter(tokens, got, src, tgt), nil
}

func (p *Provider) translateBatch(ctx context.Context, tokens []string, source, target string) (map[string]string, error) {
	input, err := json.Marshal(tokens)
	if err != nil {
		return nil, fmt.Errorf("marshal tokens: %w", err)
	}

	content, err := p.chatCompletion(ctx, []chatCompletionMsg{
		{Role: "system", Content: fmt.Sprintf(systemPrompt, source, target)},
		{Role: "user", Content: string(input)},
	})
	if err != nil {
		return nil, err
	}

	return parseMapping(content)
}

// chatCompletion returns the content of the first choice.
func (p *Provider) chatCompletion(ctx context.Context, messages []chatCompletionMsg) (string, error) {
	reqBody := chatCompletionRequest{
		Model:          p.model,
		Messages:       messages,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.baseURL+"/chat/completions",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	var chatResp chatCompletionResponse
	if err := p.client.Do(req, &chatResp); err != nil {
		return "", err
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("%w: openai: %s", domain.ErrInvalidRequest, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai: no response choices returned", domain.ErrTransient)
	}

	return chatResp.Choices[0].Message.Content, nil
}

// parseMapping decodes the model's JSON object. Non-string values are
// dropped. Content wrapped in a markdown fence is accepted.
func parseMapping(content string) (map[string]string, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var raw map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &raw); err != nil {
		return nil, fmt.Errorf("%w: openai: reply is not a JSON object: %v", domain.ErrTransient, err)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}
