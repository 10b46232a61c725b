package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request
// without calling the downstream provider.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState is the breaker's position in its recovery cycle.
type CircuitState int

const (
	// CircuitClosed passes requests through; the provider is healthy.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests until the cooldown elapses.
	CircuitOpen
	// CircuitHalfOpen lets one request through to probe recovery.
	CircuitHalfOpen
)

// CircuitBreaker opens after maxFailures consecutive errors and probes
// recovery after the cooldown. Safe for concurrent use.
type CircuitBreaker struct {
	mu          sync.RWMutex
	state       CircuitState
	failures    int
	maxFailures int
	cooldown    time.Duration
	lastFailure time.Time
}

// NewCircuitBreaker creates a closed breaker with the given trip threshold
// and cooldown.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:       CircuitClosed,
		maxFailures: maxFailures,
		cooldown:    cooldown,
	}
}

// Call runs fn through the breaker, returning ErrCircuitOpen immediately
// when the circuit is open and the cooldown has not elapsed.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Since(cb.lastFailure) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.state = CircuitHalfOpen
		fallthrough
	case CircuitHalfOpen:
		if err := fn(); err != nil {
			cb.failures++
			cb.lastFailure = time.Now()
			cb.state = CircuitOpen
			return err
		}
		cb.failures = 0
		cb.state = CircuitClosed
		return nil
	default:
		if err := fn(); err != nil {
			cb.failures++
			cb.lastFailure = time.Now()
			if cb.failures >= cb.maxFailures {
				cb.state = CircuitOpen
			}
			return err
		}
		cb.failures = 0
		return nil
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// breakerTransport routes requests through a shared CircuitBreaker.
type breakerTransport struct {
	next CoreLLM
	cb   *CircuitBreaker
}

// CircuitBreakerMiddleware fails requests fast once maxFailures consecutive
// errors occur, retrying the provider after the cooldown.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	cb := NewCircuitBreaker(maxFailures, cooldown)
	return func(next CoreLLM) CoreLLM {
		return &breakerTransport{next: next, cb: cb}
	}
}

// DoRequest executes the request through the circuit breaker.
func (b *breakerTransport) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var response string
	var tokensIn, tokensOut int

	err := b.cb.Call(func() error {
		var err error
		response, tokensIn, tokensOut, err = b.next.DoRequest(ctx, prompt, opts)
		return err
	})
	return response, tokensIn, tokensOut, err
}

// GetModel returns the model name from the wrapped implementation.
func (b *breakerTransport) GetModel() string { return b.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (b *breakerTransport) SetModel(m string) { b.next.SetModel(m) }
