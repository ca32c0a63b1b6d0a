package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default budget configuration values.
const (
	DefaultWindowSize = time.Second
	KeyPrefixBudget   = "budget:"
)

// ProviderBudget caps calls per provider per window across every replica
// sharing the same Redis.
type ProviderBudget struct {
	redis      redis.Cmdable
	limits     map[string]int
	windowSize time.Duration
	now        func() time.Time
}

// ProviderBudgetConfig holds configuration for the budget.
type ProviderBudgetConfig struct {
	// Redis is required.
	Redis redis.Cmdable

	// Limits maps a provider name to calls allowed per window. Providers
	// without an entry are unlimited.
	Limits map[string]int

	// WindowSize defaults to one second.
	WindowSize time.Duration
}

// NewProviderBudget creates a budget from cfg.
func NewProviderBudget(cfg *ProviderBudgetConfig) (*ProviderBudget, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if cfg.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	for provider, limit := range cfg.Limits {
		if limit < 0 {
			return nil, fmt.Errorf("limit for %s cannot be negative", provider)
		}
	}

	windowSize := cfg.WindowSize
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}

	return &ProviderBudget{
		redis:      cfg.Redis,
		limits:     cfg.Limits,
		windowSize: windowSize,
		now:        time.Now,
	}, nil
}

var consumeScript = redis.NewScript(`
	local used = tonumber(redis.call('GET', KEYS[1]) or '0')
	local n = tonumber(ARGV[1])
	local limit = tonumber(ARGV[2])
	if used + n > limit then
		return {0, used}
	end
	redis.call('INCRBY', KEYS[1], n)
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
	return {1, used + n}
`)

func (b *ProviderBudget) windowStart() time.Time {
	return b.now().Truncate(b.windowSize)
}

func (b *ProviderBudget) key(provider string, windowStart time.Time) string {
	return KeyPrefixBudget + provider + ":" + strconv.FormatInt(windowStart.UnixMilli(), 10)
}

// TryConsume attempts to reserve one call for provider in the current window.
// When denied it returns the time until the next window opens. Redis errors
// deny the call.
func (b *ProviderBudget) TryConsume(ctx context.Context, provider string) (bool, time.Duration) {
	limit, ok := b.limits[provider]
	if !ok {
		return true, 0
	}

	start := b.windowStart()
	ttl := (2 * b.windowSize).Milliseconds()
	res, err := consumeScript.Run(ctx, b.redis, []string{b.key(provider, start)}, 1, limit, ttl).Int64Slice()
	if err != nil || len(res) == 0 || res[0] != 1 {
		return false, b.waitTime(start)
	}
	return true, 0
}

// Used returns the number of calls consumed by provider in the current window.
func (b *ProviderBudget) Used(ctx context.Context, provider string) (int, error) {
	val, err := b.redis.Get(ctx, b.key(provider, b.windowStart())).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}

func (b *ProviderBudget) waitTime(windowStart time.Time) time.Duration {
	wait := windowStart.Add(b.windowSize).Sub(b.now())
	if wait < 0 {
		wait = 0
	}
	return wait + time.Millisecond
}

// BudgetGate chains a local gate with a shared provider budget.
type BudgetGate struct {
	inner    Gate
	budget   *ProviderBudget
	provider string
}

// NewBudgetGate wraps inner so every admitted call also consumes budget.
func NewBudgetGate(inner Gate, budget *ProviderBudget, provider string) *BudgetGate {
	if inner == nil {
		inner = Unlimited()
	}
	return &BudgetGate{inner: inner, budget: budget, provider: provider}
}

// Wait blocks until both the local gate and the shared budget admit a call.
func (g *BudgetGate) Wait(ctx context.Context) error {
	if err := g.inner.Wait(ctx); err != nil {
		return err
	}
	for {
		ok, wait := g.budget.TryConsume(ctx, g.provider)
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
