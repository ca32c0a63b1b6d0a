// Package ratelimit paces calls to third-party price and chain-data APIs.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gate blocks until the caller may issue the next upstream request.
type Gate interface {
	Wait(ctx context.Context) error
}

// IntervalGate admits one call per fixed interval.
type IntervalGate struct {
	limiter *rate.Limiter
}

// NewIntervalGate creates a gate that spaces calls at least interval apart.
// A non-positive interval disables pacing.
func NewIntervalGate(interval time.Duration) *IntervalGate {
	if interval <= 0 {
		return &IntervalGate{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &IntervalGate{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// NewTokenBucketGate creates a gate allowing rps calls per second with the given burst.
func NewTokenBucketGate(rps float64, burst int) *IntervalGate {
	if rps <= 0 {
		return &IntervalGate{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	if burst < 1 {
		burst = 1
	}
	return &IntervalGate{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until the next call is allowed or ctx is done.
func (g *IntervalGate) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

type unlimited struct{}

func (unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}

// Unlimited returns a gate that never delays.
func Unlimited() Gate {
	return unlimited{}
}
