package utils

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker refuses calls. Callers treat it
// the same as a transient upstream failure.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// CircuitBreaker guards outbound gateway calls so a dead provider fails fast
// instead of holding request handlers on a 10s timeout each.
type CircuitBreaker struct {
	name         string
	maxFailures  uint32
	openDuration time.Duration

	mutex    sync.Mutex
	state    State
	failures uint32
	openedAt time.Time
}

func NewCircuitBreaker(name string) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxFailures:  5,
		openDuration: 30 * time.Second,
		state:        StateClosed,
	}
}

// Execute runs req unless the breaker is open. A success in half-open state
// closes the breaker; a failure re-opens it.
func (cb *CircuitBreaker) Execute(ctx context.Context, req func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := req()
	cb.afterRequest(err == nil)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.stateLocked(time.Now())
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.stateLocked(time.Now()) == StateOpen {
		return ErrCircuitOpen
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if success {
		cb.failures = 0
		cb.state = StateClosed
		return
	}

	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		cb.openedAt = time.Now()
	}
}

func (cb *CircuitBreaker) stateLocked(now time.Time) State {
	if cb.state == StateOpen && now.Sub(cb.openedAt) >= cb.openDuration {
		// Let a probe request through.
		cb.state = StateHalfOpen
	}
	return cb.state
}
