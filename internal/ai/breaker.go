package ai

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation, requests pass through
	CircuitOpen                         // Too many failures, fail fast
	CircuitHalfOpen                     // Probing recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// StateChangeFunc observes circuit transitions. It runs after the breaker's
// lock is released, so it may query the breaker.
type StateChangeFunc func(from, to CircuitState, failures int)

// stateChange is a transition waiting to be reported
type stateChange struct {
	from, to CircuitState
	failures int
}

// CircuitBreaker stops calling the merge service after repeated transient
// failures and tries it again once the open timeout has passed.
type CircuitBreaker struct {
	mu sync.Mutex

	state            CircuitState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	onChange         StateChangeFunc
	now              func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration, onChange StateChangeFunc) *CircuitBreaker {
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
		onChange:         onChange,
		now:              time.Now,
	}
}

// Allow returns ErrCircuitOpen while the circuit is open and the open
// timeout has not passed yet.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	var change *stateChange
	err := ErrCircuitOpen
	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		err = nil
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.openTimeout {
			change = cb.transition(CircuitHalfOpen)
			err = nil
		}
	}
	cb.mu.Unlock()

	cb.notify(change)
	return err
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	var change *stateChange
	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.failureCount = 0
			change = cb.transition(CircuitClosed)
		}
	}
	cb.mu.Unlock()

	cb.notify(change)
}

// RecordFailure records a transient failure
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	var change *stateChange
	cb.lastFailureTime = cb.now()
	switch cb.state {
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			change = cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		// any failure while probing reopens
		change = cb.transition(CircuitOpen)
	}
	cb.mu.Unlock()

	cb.notify(change)
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Metrics returns the state and counters
func (cb *CircuitBreaker) Metrics() (state CircuitState, failures, successes int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.failureCount, cb.successCount
}

// transition must be called with the lock held. It returns the change to
// report once the lock is released, or nil.
func (cb *CircuitBreaker) transition(to CircuitState) *stateChange {
	from := cb.state
	cb.state = to
	cb.successCount = 0
	if from == to {
		return nil
	}
	return &stateChange{from: from, to: to, failures: cb.failureCount}
}

func (cb *CircuitBreaker) notify(c *stateChange) {
	if c != nil && cb.onChange != nil {
		cb.onChange(c.from, c.to, c.failures)
	}
}
