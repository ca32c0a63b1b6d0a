package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-insight/internal/httpclient"
)

func newTestCryptoCompare(t *testing.T, handler http.HandlerFunc) *CryptoCompareClient {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := httpclient.New(httpclient.Config{Provider: "cryptocompare", BaseURL: srv.URL}, nil)
	t.Cleanup(func() { _ = client.Close() })
	return NewCryptoCompareClient(client, "key")
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func TestCryptoCompareSpotPrices(t *testing.T) {
	c := newTestCryptoCompare(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/pricemulti", r.URL.Path)
		assert.Equal(t, "ETH,UNI", r.URL.Query().Get("fsyms"))
		assert.Equal(t, "USD", r.URL.Query().Get("tsyms"))
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		writeJSON(w, `{"ETH":{"USD":3000.25},"UNI":{"USD":7.1}}`)
	})

	prices, err := c.SpotPrices(context.Background(), []string{"ETH", "UNI"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"ETH": 3000.25, "UNI": 7.1}, prices)
}

func TestCryptoCompareHistoricalPrice(t *testing.T) {
	c := newTestCryptoCompare(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/pricehistorical", r.URL.Path)
		assert.Equal(t, "1700000000", r.URL.Query().Get("ts"))
		writeJSON(w, `{"UNI":{"USD":4.2}}`)
	})

	p, err := c.HistoricalPrice(context.Background(), "UNI", 1700000000)
	require.NoError(t, err)
	assert.Equal(t, 4.2, p)
}

func TestCryptoCompareErrorEnvelope(t *testing.T) {
	c := newTestCryptoCompare(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"Response":"Error","Message":"rate limit","Type":99}`)
	})

	_, err := c.HistoricalPrice(context.Background(), "UNI", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.NotErrorIs(t, err, ErrNoPriceData)

	_, err = c.SpotPrices(context.Background(), []string{"UNI"})
	assert.Error(t, err)
}

func TestCryptoCompareHistoricalPriceMissing(t *testing.T) {
	c := newTestCryptoCompare(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"OBSCURE":{}}`)
	})

	_, err := c.HistoricalPrice(context.Background(), "OBSCURE", 1700000000)
	assert.ErrorIs(t, err, ErrNoPriceData)
}
