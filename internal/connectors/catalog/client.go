package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
	"github.com/custodia-labs/listsync/internal/ratelimit"
)

// Ensure Client implements the interface.
var _ driven.CatalogClient = (*Client)(nil)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// UserAgent identifies the client to the catalog.
	UserAgent = "listsync/1.0"

	// accessNamePlaceholder is substituted with the configured access name.
	accessNamePlaceholder = "{access_name}"

	// maxBodySize caps a decoded response body.
	maxBodySize = 64 << 20

	// maxErrorBody caps the response text kept on HTTP errors.
	maxErrorBody = 512
)

// Client talks to the catalog REST API.
type Client struct {
	baseURL    string
	apiKey     string
	accessName string
	http       *http.Client

	changesLimiter *ratelimit.Limiter
	offersLimiter  *ratelimit.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient creates a catalog client from settings.
func NewClient(settings domain.CatalogSettings, opts ...Option) *Client {
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL:        strings.TrimRight(settings.BaseURL, "/"),
		apiKey:         strings.TrimSpace(settings.APIKey),
		accessName:     strings.TrimSpace(settings.AccessName),
		http:           &http.Client{Timeout: timeout},
		changesLimiter: ratelimit.New(settings.ChangesInterval),
		offersLimiter:  ratelimit.New(settings.OffersInterval),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChangeID returns the first change id recorded on date, or zero when the
// catalog has none.
func (c *Client) ChangeID(ctx context.Context, date time.Time) (int64, error) {
	params := url.Values{"date": {date.Format(domain.DateLayout)}}

	var resp changeIDResponse
	if err := c.get(ctx, "change_id", params, c.changesLimiter, &resp); err != nil {
		return 0, err
	}
	return resp.id(), nil
}

// Changes returns the change page starting at changeID.
func (c *Client) Changes(ctx context.Context, changeID int64) (*domain.ChangePage, error) {
	params := url.Values{"change_id": {strconv.FormatInt(changeID, 10)}}

	var resp listResponse
	if err := c.get(ctx, "changes", params, c.changesLimiter, &resp); err != nil {
		return nil, err
	}

	page := &domain.ChangePage{
		Changes:         resp.changes("changes"),
		CurrentChangeID: int64(resp.Meta.CurChangeID),
		NextChangeID:    int64(resp.Meta.NextChangeID),
	}
	if page.CurrentChangeID == 0 {
		page.CurrentChangeID = changeID
	}
	// A feed that stops advancing is drained. An empty page with a later
	// next id is not: the date continues past it.
	if page.NextChangeID <= changeID {
		page.NextChangeID = 0
	}
	return page, nil
}

// Offers returns one page of the full listing snapshot.
func (c *Client) Offers(ctx context.Context, page int) (*domain.SnapshotPage, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: offers page %d", domain.ErrInvalidInput, page)
	}
	params := url.Values{"page": {strconv.Itoa(page)}}

	var resp listResponse
	if err := c.get(ctx, "offers", params, c.offersLimiter, &resp); err != nil {
		return nil, err
	}

	next := int(resp.Meta.NextPage)
	if len(resp.records()) == 0 || next <= page {
		next = 0
	}
	return &domain.SnapshotPage{
		Page:     page,
		Records:  resp.changes("offers"),
		NextPage: next,
	}, nil
}

// endpoint builds the URL for path with the api key attached.
func (c *Client) endpoint(path string, params url.Values) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: catalog api key not configured", domain.ErrAuthentication)
	}

	base := c.baseURL
	if strings.Contains(base, accessNamePlaceholder) {
		if c.accessName == "" {
			return "", fmt.Errorf("%w: catalog access name not configured", domain.ErrAuthentication)
		}
		base = strings.ReplaceAll(base, accessNamePlaceholder, url.PathEscape(c.accessName))
	}
	if base == "" {
		return "", fmt.Errorf("%w: catalog base url not configured", domain.ErrInvalidInput)
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("api_key", c.apiKey)
	return base + "/" + path + "?" + q.Encode(), nil
}

// get performs one throttled GET and decodes the JSON body into out.
// Failures are mapped onto the domain error taxonomy; nothing is retried here.
func (c *Client) get(ctx context.Context, path string, params url.Values, limiter *ratelimit.Limiter, out any) error {
	source := "catalog /" + path

	target, err := c.endpoint(path, params)
	if err != nil {
		return err
	}

	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrInvalidRequest, err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s: %s", domain.ErrTransient, source, redact(err, c.apiKey))
	}
	defer resp.Body.Close()

	if err := limiter.Check(resp, source); err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &domain.HTTPStatusError{
			Source:     source,
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
		return fmt.Errorf("%w: %s: decode response: %v", domain.ErrTransient, source, err)
	}
	return nil
}

// redact strips the api key from transport errors, which echo the URL.
func redact(err error, key string) string {
	msg := err.Error()
	if key == "" {
		return msg
	}
	return strings.ReplaceAll(msg, url.QueryEscape(key), "***")
}
