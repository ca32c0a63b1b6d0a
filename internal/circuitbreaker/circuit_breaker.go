// Package circuitbreaker stops hammering an upstream provider that keeps failing.
package circuitbreaker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/wallet-insight/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means calls flow normally
	StateClosed State = "closed"
	// StateOpen means calls are rejected without reaching the provider
	StateOpen State = "open"
	// StateHalfOpen means a limited number of probe calls are let through
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config configures a circuit breaker
type Config struct {
	Name string
	// MaxConsecutiveFailures opens the circuit when reached.
	MaxConsecutiveFailures int
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration
	// HalfOpenProbes successful probes close the circuit again.
	HalfOpenProbes int
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:                   name,
		MaxConsecutiveFailures: 5,
		Cooldown:               30 * time.Second,
		HalfOpenProbes:         1,
	}
}

// CircuitBreaker guards calls to a single provider
type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu               sync.Mutex
	state            State
	consecutiveFails int
	probeSuccesses   int
	probesInFlight   int
	openedAt         time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig("default")
	}
	cfg := *config
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 5
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now, state: StateClosed}
}

// Execute runs fn unless the circuit is open. Context cancellation by the
// caller is not counted as a provider failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn(ctx)

	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probesInFlight = 1
		return nil
	case StateHalfOpen:
		if cb.probesInFlight >= cb.cfg.HalfOpenProbes {
			return ErrCircuitOpen
		}
		cb.probesInFlight++
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.probesInFlight > 0 {
		cb.probesInFlight--
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		cb.consecutiveFails++
		switch {
		case cb.state == StateHalfOpen:
			cb.open()
		case cb.consecutiveFails >= cb.cfg.MaxConsecutiveFailures:
			cb.open()
		}
		return
	}

	cb.consecutiveFails = 0
	if cb.state == StateHalfOpen {
		cb.probeSuccesses++
		if cb.probeSuccesses >= cb.cfg.HalfOpenProbes {
			cb.transition(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = cb.now()
	cb.transition(StateOpen)
	logging.WithFields(map[string]interface{}{
		"circuitBreaker":   cb.cfg.Name,
		"consecutiveFails": cb.consecutiveFails,
	}).Warn("Circuit breaker opened")
}

func (cb *CircuitBreaker) transition(state State) {
	if cb.state == state {
		return
	}
	cb.state = state
	cb.probeSuccesses = 0
	if state != StateHalfOpen {
		cb.probesInFlight = 0
	}
	logging.WithFields(map[string]interface{}{
		"circuitBreaker": cb.cfg.Name,
		"state":          state,
	}).Info("Circuit breaker state changed")
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the provider name the breaker guards
func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}

// Registry keeps one breaker per provider so health checks can report them
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*CircuitBreaker)}
}

// GetOrCreate returns the breaker for name, creating it with config when absent
func (r *Registry) GetOrCreate(name string, config *Config) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	if config == nil {
		config = DefaultConfig(name)
	}
	cfg := *config
	cfg.Name = name
	cb := NewCircuitBreaker(&cfg)
	r.breakers[name] = cb
	return cb
}

// States returns the state of every breaker keyed by provider
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)

	out := make(map[string]State, len(names))
	for _, name := range names {
		r.mu.Lock()
		cb := r.breakers[name]
		r.mu.Unlock()
		out[name] = cb.State()
	}
	return out
}
