// Package transport holds the HTTP plumbing shared by translation providers.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/ratelimit"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

const (
	maxBodySize  = 16 << 20
	maxErrorBody = 512
)

// Client sends throttled requests to one provider and maps failures onto
// the domain error taxonomy. It never retries.
type Client struct {
	http    *http.Client
	limiter *ratelimit.Limiter
	source  string
}

// New creates a client for source allowing one request per interval.
func New(source string, timeout, interval time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		limiter: ratelimit.New(interval),
		source:  source,
	}
}

// Do sends req and decodes a JSON response body into out.
func (c *Client) Do(req *http.Request, out any) error {
	ctx := req.Context()
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrTransient, c.source, err)
	}
	defer resp.Body.Close()

	if err := c.limiter.Check(resp, c.source); err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &domain.HTTPStatusError{
			Source:     c.source,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
		if errors.Unwrap(statusErr) == nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, statusErr)
		}
		return statusErr
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s: decode response: %v", domain.ErrTransient, c.source, err)
	}
	return nil
}

// Chunks splits tokens into slices of at most size.
func Chunks(tokens []string, size int) [][]string {
	if size < 1 {
		size = len(tokens)
	}
	var out [][]string
	for start := 0; start < len(tokens); start += size {
		out = append(out, tokens[start:min(start+size, len(tokens))])
	}
	return out
}

// Unavailable reports a provider that cannot run without a credential.
func Unavailable(provider domain.ProviderName, what string) error {
	return fmt.Errorf("%w: %s requires %s", domain.ErrProviderUnavailable, provider, what)
}

// Cancelled reports whether err stems from ctx ending.
func Cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
