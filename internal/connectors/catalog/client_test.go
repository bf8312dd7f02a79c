package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(domain.CatalogSettings{
		BaseURL: server.URL + "/api/v2/che168",
		APIKey:  "secret",
		Timeout: 5 * time.Second,
	})
}

func TestClient_ChangeID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/che168/change_id", r.URL.Path)
		assert.Equal(t, "2025-01-02", r.URL.Query().Get("date"))
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"change_id": 1500}`))
	})

	id, err := client.ChangeID(context.Background(), time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1500), id)
}

func TestClient_ChangeID_NestedAndMissing(t *testing.T) {
	body := `{"data": {"change_id": "42"}}`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	})
	day := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	id, err := client.ChangeID(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	body = `{"change_id": null}`
	id, err = client.ChangeID(context.Background(), day)
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestClient_Changes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/che168/changes", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("change_id"))
		_, _ = w.Write([]byte(`{
			"result": [
				{"id": 1, "inner_id": "a1", "change_type": "added", "created_at": "2025-01-02T10:00:00Z", "data": {"title": "宝马"}},
				{"id": 2, "inner_id": 777, "change_type": "changed", "created_at": "2025-01-02 11:30:00", "data": {"price": 10}},
				{"id": 3, "inner_id": "gone", "change_type": "removed", "created_at": "2025-01-02T12:00:00Z"},
				{"id": 4, "change_type": "added", "data": {}}
			],
			"meta": {"cur_change_id": 100, "next_change_id": 104}
		}`))
	})

	page, err := client.Changes(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), page.CurrentChangeID)
	assert.Equal(t, int64(104), page.NextChangeID)
	require.Len(t, page.Changes, 3)

	assert.Equal(t, "a1", page.Changes[0].ExternalID)
	assert.Equal(t, domain.ChangeCreated, page.Changes[0].Type)
	assert.Equal(t, "宝马", page.Changes[0].Payload["title"])
	assert.Equal(t, time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC), page.Changes[0].SourceCreatedAt)

	assert.Equal(t, "777", page.Changes[1].ExternalID)
	assert.Equal(t, domain.ChangeUpdated, page.Changes[1].Type)
	assert.Equal(t, time.Date(2025, 1, 2, 11, 30, 0, 0, time.UTC), page.Changes[1].SourceCreatedAt)

	assert.Equal(t, domain.ChangeDeleted, page.Changes[2].Type)
}

func TestClient_Changes_Drained(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty result without next", `{"result": [], "meta": {"cur_change_id": 200, "next_change_id": null}}`},
		{"no next", `{"result": [{"inner_id": "x", "change_type": "added"}], "meta": {"cur_change_id": 200}}`},
		{"next not advancing", `{"result": [{"inner_id": "x"}], "meta": {"cur_change_id": 200, "next_change_id": 200}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			page, err := client.Changes(context.Background(), 200)
			require.NoError(t, err)
			assert.Zero(t, page.NextChangeID)
			assert.Equal(t, int64(200), page.CurrentChangeID)
		})
	}
}

func TestClient_Changes_EmptyPageKeepsPaging(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": [], "meta": {"cur_change_id": 100, "next_change_id": 200}}`))
	})

	page, err := client.Changes(context.Background(), 100)
	require.NoError(t, err)
	assert.Empty(t, page.Changes)
	assert.Equal(t, int64(200), page.NextChangeID)
}

func TestClient_Offers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/che168/offers", r.URL.Path)
		switch r.URL.Query().Get("page") {
		case "1":
			_, _ = w.Write([]byte(`{"result": [{"inner_id": "a", "data": {"mark": "BMW"}}, {"inner_id": "b", "mark": "Audi"}], "meta": {"page": 1, "next_page": 2}}`))
		default:
			_, _ = w.Write([]byte(`{"result": [{"inner_id": "c", "data": {}}], "meta": {"page": 2, "next_page": null}}`))
		}
	})

	first, err := client.Offers(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Page)
	assert.Equal(t, 2, first.NextPage)
	require.Len(t, first.Records, 2)
	assert.Equal(t, "BMW", first.Records[0].Payload["mark"])
	assert.Equal(t, "Audi", first.Records[1].Payload["mark"])
	assert.Equal(t, domain.ChangeCreated, first.Records[1].Type)

	last, err := client.Offers(context.Background(), 2)
	require.NoError(t, err)
	assert.Zero(t, last.NextPage)
}

func TestClient_Offers_InvalidPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := client.Offers(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrAuthentication},
		{http.StatusForbidden, domain.ErrAuthentication},
		{http.StatusBadRequest, domain.ErrInvalidRequest},
		{http.StatusNotFound, domain.ErrInvalidRequest},
		{http.StatusTeapot, domain.ErrInvalidRequest},
		{http.StatusBadGateway, domain.ErrTransient},
		{http.StatusServiceUnavailable, domain.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})
			_, err := client.Changes(context.Background(), 1)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var statusErr *domain.HTTPStatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, "nope", statusErr.Body)
		})
	}
}

func TestClient_RateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Offers(context.Background(), 1)
	var rl *domain.RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, "catalog /offers", rl.Source)
	assert.Zero(t, rl.RetryAfter)
}

func TestClient_InvalidJSONIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway</html>`))
	})
	_, err := client.Changes(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestClient_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	base := server.URL
	server.Close()

	client := NewClient(domain.CatalogSettings{BaseURL: base, APIKey: "secret"})
	_, err := client.ChangeID(context.Background(), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.NotContains(t, err.Error(), "secret")
}

func TestClient_MissingCredentials(t *testing.T) {
	client := NewClient(domain.CatalogSettings{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Changes(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrAuthentication)

	client = NewClient(domain.CatalogSettings{
		BaseURL: "https://{access_name}.example.test/api",
		APIKey:  "k",
	})
	_, err = client.Changes(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestClient_AccessNameSubstitution(t *testing.T) {
	client := NewClient(domain.CatalogSettings{
		BaseURL:    "https://{access_name}.example.test/api/",
		APIKey:     "k",
		AccessName: "acme",
	})
	target, err := client.endpoint("offers", map[string][]string{"page": {"3"}})
	require.NoError(t, err)
	assert.Equal(t, "https://acme.example.test/api/offers?api_key=k&page=3", target)
}

func TestClient_CancelledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Changes(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
