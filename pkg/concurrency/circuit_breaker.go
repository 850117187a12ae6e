package concurrency

import (
	"sync"
	"sync/atomic"
	"time"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState int32

const (
	// StateClosed indicates the circuit is closed and operations are allowed
	StateClosed CircuitBreakerState = 0

	// StateOpen indicates the circuit is open and operations are blocked
	StateOpen CircuitBreakerState = 1

	// StateHalfOpen indicates the circuit is testing if it should close
	StateHalfOpen CircuitBreakerState = 2
)

// halfOpenSuccessesToClose is how many consecutive successes in half-open
// state close the circuit again.
const halfOpenSuccessesToClose = 5

// CircuitBreaker trips after a run of consecutive failures so a limiter can
// stop admitting new units while the underlying fault persists.
type CircuitBreaker struct {
	state                atomic.Int32
	consecutiveFailures  atomic.Int64
	consecutiveSuccesses atomic.Int64
	lastFailureNs        atomic.Int64
	failureThreshold     int64
	resetTimeout         time.Duration
	mu                   sync.Mutex
}

// NewCircuitBreaker creates a circuit breaker with the specified threshold
// and reset timeout.
func NewCircuitBreaker(failureThreshold int64, resetTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 10
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
	}
}

// IsOpen returns true if the circuit is currently blocking operations.
// An open circuit transitions to half-open once the reset timeout elapses.
func (cb *CircuitBreaker) IsOpen() bool {
	if CircuitBreakerState(cb.state.Load()) != StateOpen {
		return false
	}

	lastFailure := cb.lastFailureNs.Load()
	if lastFailure > 0 && time.Since(time.Unix(0, lastFailure)) > cb.resetTimeout {
		cb.transitionTo(StateHalfOpen)
		return false
	}
	return true
}

// RecordSuccess records a successful operation.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.consecutiveFailures.Store(0)

	if CircuitBreakerState(cb.state.Load()) == StateHalfOpen {
		if cb.consecutiveSuccesses.Add(1) >= halfOpenSuccessesToClose {
			cb.transitionTo(StateClosed)
		}
	}
}

// RecordFailure records a failed operation. The circuit opens once the
// consecutive-failure threshold is reached, and any failure while half-open
// reopens it.
func (cb *CircuitBreaker) RecordFailure() {
	cb.consecutiveSuccesses.Store(0)
	cb.lastFailureNs.Store(time.Now().UnixNano())

	failures := cb.consecutiveFailures.Add(1)

	switch CircuitBreakerState(cb.state.Load()) {
	case StateClosed:
		if failures >= cb.failureThreshold {
			cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	}
}

// GetState returns the current state of the circuit breaker.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	return CircuitBreakerState(cb.state.Load())
}

// GetConsecutiveFailures returns the current number of consecutive failures.
func (cb *CircuitBreaker) GetConsecutiveFailures() int64 {
	return cb.consecutiveFailures.Load()
}

// Reset resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.transitionTo(StateClosed)
	cb.consecutiveFailures.Store(0)
	cb.consecutiveSuccesses.Store(0)
	cb.lastFailureNs.Store(0)
}

// transitionTo moves the breaker to a new state, resetting the counters the
// new state starts from.
func (cb *CircuitBreaker) transitionTo(newState CircuitBreakerState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if CircuitBreakerState(cb.state.Load()) == newState {
		return
	}

	cb.state.Store(int32(newState))

	switch newState {
	case StateClosed:
		cb.consecutiveFailures.Store(0)
		cb.consecutiveSuccesses.Store(0)
	case StateHalfOpen:
		cb.consecutiveSuccesses.Store(0)
	}
}

// String returns the string representation of the circuit breaker state.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}
