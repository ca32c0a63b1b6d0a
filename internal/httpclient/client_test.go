package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGate struct{ calls int32 }

func (g *countingGate) Wait(ctx context.Context) error {
	atomic.AddInt32(&g.calls, 1)
	return ctx.Err()
}

func TestClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.Equal(t, "ETH", r.URL.Query().Get("fsym"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"USD": 2500.5}`))
	}))
	defer srv.Close()

	gate := &countingGate{}
	client := New(Config{
		Provider: "test",
		BaseURL:  srv.URL,
		Headers:  map[string]string{"X-API-Key": "secret"},
		Gate:     gate,
	}, nil)
	defer client.Close()

	var out struct {
		USD float64 `json:"USD"`
	}
	require.NoError(t, client.Get(context.Background(), "/data/price", map[string]string{"fsym": "ETH"}, &out))
	assert.Equal(t, 2500.5, out.USD)
	assert.Equal(t, int32(1), atomic.LoadInt32(&gate.calls))
}

func TestClientGetErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	client := New(Config{Provider: "test", BaseURL: srv.URL}, nil)
	defer client.Close()

	var out map[string]interface{}
	err := client.Get(context.Background(), "/x", nil, &out)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusForbidden, httpErr.Code)
}
