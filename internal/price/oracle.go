// Package price resolves spot and historical USD prices for token symbols.
package price

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/wallet-insight/internal/circuitbreaker"
	"github.com/wallet-insight/internal/logging"
	"github.com/wallet-insight/internal/ratelimit"
)

// ErrNoPriceData is returned by a Provider that answered but has no quote for
// the symbol (and timestamp). It is not a provider failure.
var ErrNoPriceData = errors.New("no price data")

// Oracle is what the valuation and performance services need from a price feed.
type Oracle interface {
	GetSpotPrices(ctx context.Context, symbols []string) (map[string]float64, error)
	GetHistoricalPrice(ctx context.Context, symbol string, unixTs int64, memo *HistoricalCache) (float64, error)
}

// AdapterConfig configures an Adapter
type AdapterConfig struct {
	BatchSize      int
	SpotTTL        time.Duration
	HistoricalGate ratelimit.Gate
	// Breaker guards spot lookups, HistoricalBreaker guards historical ones.
	Breaker           *circuitbreaker.CircuitBreaker
	HistoricalBreaker *circuitbreaker.CircuitBreaker
}

// Adapter wraps a Provider with batching, a short spot cache, a circuit
// breaker and a pacing gate for historical lookups.
type Adapter struct {
	provider  Provider
	batchSize int
	spot      *gocache.Cache
	gate      ratelimit.Gate
	breaker   *circuitbreaker.CircuitBreaker
	histBreak *circuitbreaker.CircuitBreaker
}

// NewAdapter creates an Adapter around provider
func NewAdapter(provider Provider, cfg AdapterConfig) *Adapter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 30
	}
	if cfg.HistoricalGate == nil {
		cfg.HistoricalGate = ratelimit.Unlimited()
	}
	if cfg.Breaker == nil {
		cfg.Breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(provider.Name()))
	}
	if cfg.HistoricalBreaker == nil {
		cfg.HistoricalBreaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(provider.Name() + "-historical"))
	}

	a := &Adapter{
		provider:  provider,
		batchSize: cfg.BatchSize,
		gate:      cfg.HistoricalGate,
		breaker:   cfg.Breaker,
		histBreak: cfg.HistoricalBreaker,
	}
	if cfg.SpotTTL > 0 {
		a.spot = gocache.New(cfg.SpotTTL, 2*cfg.SpotTTL)
	}
	return a
}

// GetSpotPrices returns USD prices keyed by upper-case symbol. Unknown symbols
// are omitted; a failed batch fails the whole call.
func (a *Adapter) GetSpotPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(symbols))
	missing := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))

	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}

		if a.spot != nil {
			if v, ok := a.spot.Get(s); ok {
				prices[s] = v.(float64)
				continue
			}
		}
		missing = append(missing, s)
	}
	sort.Strings(missing)

	for start := 0; start < len(missing); start += a.batchSize {
		end := start + a.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		var quotes map[string]float64
		err := a.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			quotes, err = a.provider.SpotPrices(ctx, batch)
			return err
		})
		if err != nil {
			return nil, err
		}

		for s, p := range quotes {
			prices[s] = p
			if a.spot != nil {
				a.spot.SetDefault(s, p)
			}
		}
	}

	return prices, nil
}

// GetSpotPrice returns the USD price of a single symbol, 0 when unknown.
func (a *Adapter) GetSpotPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := a.GetSpotPrices(ctx, []string{symbol})
	if err != nil {
		return 0, err
	}
	return prices[strings.ToUpper(symbol)], nil
}

// GetHistoricalPrice returns the USD price of symbol at unixTs. Calls that
// miss memo wait on the historical gate, so a FIFO run issues them one at a
// time. A lookup the provider has no data for returns ErrNoPriceData and
// leaves the breaker untouched.
func (a *Adapter) GetHistoricalPrice(ctx context.Context, symbol string, unixTs int64, memo *HistoricalCache) (float64, error) {
	if memo != nil {
		if p, ok := memo.Get(symbol, unixTs); ok {
			return p, nil
		}
	}

	if err := a.gate.Wait(ctx); err != nil {
		return 0, err
	}

	var (
		p    float64
		miss error
	)
	err := a.histBreak.Execute(ctx, func(ctx context.Context) error {
		var err error
		p, err = a.provider.HistoricalPrice(ctx, strings.ToUpper(symbol), unixTs)
		if errors.Is(err, ErrNoPriceData) {
			miss = err
			return nil
		}
		return err
	})
	if err == nil {
		err = miss
	}
	if err != nil {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"symbol": symbol,
			"ts":     unixTs,
		}).WithError(err).Debug("Historical price lookup failed")
		return 0, err
	}

	if memo != nil {
		memo.Put(symbol, unixTs, p)
	}
	return p, nil
}
