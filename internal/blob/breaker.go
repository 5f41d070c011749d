// breaker.go - Circuit breaker around a blob backend.
//
// Fails fast while the backend is down so uploads do not pile up behind
// storage timeouts.
package blob

import (
	"context"
	"errors"
	"sync"
	"time"

	"pin-clipboard/internal/logging"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// StateClosed: requests flow normally
	StateClosed CircuitState = iota
	// StateOpen: requests fail fast
	StateOpen
	// StateHalfOpen: one probe request is let through
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned when circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned when half-open circuit receives too many requests.
	ErrTooManyRequests = errors.New("too many requests while circuit is half-open")
)

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	mu sync.Mutex

	maxFailures uint32
	timeout     time.Duration
	maxHalfOpen uint32

	state            CircuitState
	failures         uint32
	lastFailureTime  time.Time
	halfOpenRequests uint32

	now func() time.Time
}

// NewCircuitBreaker opens after maxFailures consecutive failures and probes
// again once timeout has passed.
func NewCircuitBreaker(maxFailures uint32, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: maxFailures,
		timeout:     timeout,
		maxHalfOpen: 1,
		state:       StateClosed,
		now:         time.Now,
	}
}

// Execute runs fn with circuit breaker protection. Errors for which
// neutral returns true pass through without counting as failures.
func (cb *CircuitBreaker) Execute(fn func() error, neutral func(error) bool) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil && (neutral == nil || !neutral(err)) {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) <= cb.timeout {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.halfOpenRequests = 0
		logging.Info("circuit_breaker_half_open", map[string]interface{}{
			"timeout_elapsed": cb.timeout.String(),
		})
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.maxHalfOpen {
			return ErrTooManyRequests
		}
		cb.halfOpenRequests++
	}
	return nil
}

func (cb *CircuitBreaker) onSuccess() {
	if cb.state == StateHalfOpen {
		logging.Info("circuit_breaker_closed", map[string]interface{}{
			"reason": "recovery_successful",
		})
	}
	cb.state = StateClosed
	cb.failures = 0
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailureTime = cb.now()

	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		if cb.state != StateOpen {
			logging.Warn("circuit_breaker_opened", map[string]interface{}{
				"failures":     cb.failures,
				"max_failures": cb.maxFailures,
				"timeout":      cb.timeout.String(),
			})
		}
		cb.state = StateOpen
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Guarded wraps a Store with a circuit breaker.
type Guarded struct {
	next Store
	cb   *CircuitBreaker
}

// NewGuarded returns next protected by cb.
func NewGuarded(next Store, cb *CircuitBreaker) *Guarded {
	return &Guarded{next: next, cb: cb}
}

func notFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func (g *Guarded) Put(ctx context.Context, path string, data []byte, mimeType string) (string, error) {
	var ref string
	err := g.cb.Execute(func() error {
		var err error
		ref, err = g.next.Put(ctx, path, data, mimeType)
		return err
	}, nil)
	return ref, err
}

func (g *Guarded) Get(ctx context.Context, ref string) ([]byte, error) {
	var data []byte
	err := g.cb.Execute(func() error {
		var err error
		data, err = g.next.Get(ctx, ref)
		return err
	}, notFound)
	return data, err
}

func (g *Guarded) Delete(ctx context.Context, ref string) error {
	return g.cb.Execute(func() error {
		return g.next.Delete(ctx, ref)
	}, nil)
}

// Breaker exposes the breaker for health reporting.
func (g *Guarded) Breaker() *CircuitBreaker {
	return g.cb
}
