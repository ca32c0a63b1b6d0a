package price

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/wallet-insight/internal/httpclient"
)

const quoteCurrency = "USD"

// Provider is a raw price feed without caching or pacing.
type Provider interface {
	Name() string
	SpotPrices(ctx context.Context, symbols []string) (map[string]float64, error)
	HistoricalPrice(ctx context.Context, symbol string, unixTs int64) (float64, error)
}

// CryptoCompareClient reads prices from the CryptoCompare min-api.
type CryptoCompareClient struct {
	http   *httpclient.Client
	apiKey string
}

// NewCryptoCompareClient creates a client on top of a configured REST client.
func NewCryptoCompareClient(http *httpclient.Client, apiKey string) *CryptoCompareClient {
	return &CryptoCompareClient{http: http, apiKey: apiKey}
}

// Name implements Provider
func (c *CryptoCompareClient) Name() string { return "cryptocompare" }

// SpotPrices returns USD prices for symbols. Symbols the feed does not know
// are absent from the result.
func (c *CryptoCompareClient) SpotPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	params := c.params(map[string]string{
		"fsyms": strings.Join(symbols, ","),
		"tsyms": quoteCurrency,
	})

	var raw map[string]json.RawMessage
	if err := c.http.Get(ctx, "/data/pricemulti", params, &raw); err != nil {
		return nil, err
	}
	return decodeQuotes(raw)
}

// HistoricalPrice returns the USD close for symbol on the day of unixTs.
func (c *CryptoCompareClient) HistoricalPrice(ctx context.Context, symbol string, unixTs int64) (float64, error) {
	params := c.params(map[string]string{
		"fsym":  symbol,
		"tsyms": quoteCurrency,
		"ts":    strconv.FormatInt(unixTs, 10),
	})

	var raw map[string]json.RawMessage
	if err := c.http.Get(ctx, "/data/pricehistorical", params, &raw); err != nil {
		return 0, err
	}
	quotes, err := decodeQuotes(raw)
	if err != nil {
		return 0, err
	}
	p, ok := quotes[strings.ToUpper(symbol)]
	if !ok {
		return 0, fmt.Errorf("%w for %s at %d", ErrNoPriceData, symbol, unixTs)
	}
	return p, nil
}

func (c *CryptoCompareClient) params(p map[string]string) map[string]string {
	if c.apiKey != "" {
		p["api_key"] = c.apiKey
	}
	return p
}

// decodeQuotes parses {"ETH":{"USD":1.0}} and the {"Response":"Error"} envelope.
func decodeQuotes(raw map[string]json.RawMessage) (map[string]float64, error) {
	if status, ok := raw["Response"]; ok {
		var s string
		_ = json.Unmarshal(status, &s)
		if strings.EqualFold(s, "Error") {
			var msg string
			_ = json.Unmarshal(raw["Message"], &msg)
			return nil, fmt.Errorf("cryptocompare error: %s", msg)
		}
	}

	out := make(map[string]float64, len(raw))
	for symbol, body := range raw {
		var quote map[string]float64
		if err := json.Unmarshal(body, &quote); err != nil {
			continue
		}
		if usd, ok := quote[quoteCurrency]; ok {
			out[strings.ToUpper(symbol)] = usd
		}
	}
	return out, nil
}
