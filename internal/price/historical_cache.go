package price

import (
	"strings"
	"sync"
)

type historicalKey struct {
	symbol string
	ts     int64
}

// HistoricalCache memoizes historical lookups for one portfolio evaluation.
// Create one per request; it is never shared across requests.
type HistoricalCache struct {
	mu     sync.Mutex
	prices map[historicalKey]float64
	hits   int
}

// NewHistoricalCache returns an empty cache
func NewHistoricalCache() *HistoricalCache {
	return &HistoricalCache{prices: make(map[historicalKey]float64)}
}

// Get returns a memoized price
func (c *HistoricalCache) Get(symbol string, ts int64) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prices[historicalKey{strings.ToUpper(symbol), ts}]
	if ok {
		c.hits++
	}
	return p, ok
}

// Put stores a successfully resolved price. Failures are not cached.
func (c *HistoricalCache) Put(symbol string, ts int64, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[historicalKey{strings.ToUpper(symbol), ts}] = price
}

// Len returns the number of memoized prices
func (c *HistoricalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prices)
}

// Hits returns how many lookups were served from memory
func (c *HistoricalCache) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}
