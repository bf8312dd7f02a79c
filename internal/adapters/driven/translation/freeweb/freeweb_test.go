package freeweb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{BaseURL: server.URL, Interval: -1})
}

var replies = map[string]string{
	"自动": `[[["Автомат","自动",null,null,10]],null,"zh-CN"]`,
	"黑色": `[[["Чёрный","黑色",null,null,10]],null,"zh-CN"]`,
	"宝马": `[[["宝马","宝马",null,null,10]],null,"zh-CN"]`,
	"天窗": `[[["Люк ","天",null,null,3],["в крыше","窗",null,null,3]],null,"zh-CN"]`,
}

func TestProvider_Translate(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "gtx", q.Get("client"))
		assert.Equal(t, "zh", q.Get("sl"))
		assert.Equal(t, "ru", q.Get("tl"))
		_, _ = w.Write([]byte(replies[q.Get("q")]))
	})

	got, err := p.Translate(context.Background(), []string{"自动", "黑色", "宝马", "天窗"}, "zh", "ru")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"自动": "Автомат",
		"黑色": "Чёрный",
		"天窗": "Люк в крыше",
	}, got)
	assert.Equal(t, "free-web", p.Name())
}

func TestProvider_SkipsRejectedTokens(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "坏" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(replies[r.URL.Query().Get("q")]))
	})

	got, err := p.Translate(context.Background(), []string{"坏", "自动"}, "zh", "ru")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"自动": "Автомат"}, got)
}

func TestProvider_PartialOnTransientFailure(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) > 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(replies[r.URL.Query().Get("q")]))
	})

	got, err := p.Translate(context.Background(), []string{"自动", "黑色", "天窗"}, "zh", "ru")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"自动": "Автомат"}, got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestProvider_FailureWithNothingTranslated(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := p.Translate(context.Background(), []string{"自动"}, "zh", "ru")
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestProvider_InvalidLanguage(t *testing.T) {
	p := New(Config{})
	_, err := p.Translate(context.Background(), []string{"自动"}, "zh", "??")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
