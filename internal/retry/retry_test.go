package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(attempts int) *RetryConfig {
	return &RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	res := WithExponentialBackoff(context.Background(), fastConfig(5), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("NOTOK")
		}
		return nil
	})
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, calls)
	assert.NoError(t, res.LastError)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	boom := errors.New("invalid api key")
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context, attempt int) error {
		return Permanent(boom)
	})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "after 1 attempts")
}

func TestRetryExhausted(t *testing.T) {
	res := WithExponentialBackoff(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		return errors.New("rate limited")
	})
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
}

func TestRetryCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}
	res := WithExponentialBackoff(ctx, cfg, func(ctx context.Context, attempt int) error {
		cancel()
		return errors.New("fail")
	})
	assert.ErrorIs(t, res.LastError, context.Canceled)
	assert.Equal(t, 1, res.Attempts)
}

func TestCalculateDelay(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, calculateDelay(cfg, 1))
	assert.Equal(t, 4*time.Second, calculateDelay(cfg, 3))
	assert.Equal(t, 5*time.Second, calculateDelay(cfg, 4))
}
