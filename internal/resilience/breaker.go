// Package resilience guards outbound lookups with retries and per-service
// circuit breakers.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the state of a breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling the service while the breaker
// is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls when a breaker opens and how long it stays open.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int
	// Cooldown is how long an open breaker rejects calls before letting a
	// single probe through.
	Cooldown time.Duration
	// OnStateChange is invoked under the breaker's lock.
	OnStateChange func(from, to CircuitState)
}

// CircuitBreaker fails fast against a service that keeps failing. Only
// transient errors count as failures; a 404 from a healthy service does not.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
}

// NewCircuitBreaker creates a closed breaker for the named service.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &CircuitBreaker{name: name, cfg: cfg, now: time.Now}
}

// Name returns the guarded service name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state, reporting half-open once the cooldown
// has elapsed.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		return CircuitHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
			return eris.Wrap(ErrCircuitOpen, cb.name)
		}
		cb.setState(CircuitHalfOpen)
		cb.probing = true
		return nil
	case CircuitHalfOpen:
		if cb.probing {
			return eris.Wrap(ErrCircuitOpen, cb.name)
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
	if !IsTransient(err) {
		cb.failures = 0
		if cb.state != CircuitClosed {
			cb.setState(CircuitClosed)
		}
		return
	}
	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		cb.openedAt = cb.now()
		cb.setState(CircuitOpen)
	}
}

func (cb *CircuitBreaker) setState(to CircuitState) {
	from := cb.state
	cb.state = to
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// Call runs fn through cb, retrying transient failures per retry. Every
// attempt is counted by the breaker, and an open breaker stops the retries.
// A nil breaker only retries.
func Call[T any](ctx context.Context, cb *CircuitBreaker, retry RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	if cb == nil {
		return DoVal(ctx, retry, fn)
	}
	shouldRetry := retry.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}
	retry.ShouldRetry = func(err error) bool {
		return !eris.Is(err, ErrCircuitOpen) && shouldRetry(err)
	}
	return DoVal(ctx, retry, func(ctx context.Context) (T, error) {
		var zero T
		if err := cb.allow(); err != nil {
			return zero, err
		}
		val, err := fn(ctx)
		cb.record(err)
		return val, err
	})
}
