package concurrency

import (
	"sync"
	"sync/atomic"
	"time"
)

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState int32

const (
	// StateClosed allows operations.
	StateClosed CircuitBreakerState = 0
	// StateOpen blocks operations until the reset timeout elapses.
	StateOpen CircuitBreakerState = 1
	// StateHalfOpen admits operations while probing for recovery.
	StateHalfOpen CircuitBreakerState = 2
)

// CircuitBreaker sheds load when node executions fail consecutively, so a
// misbehaving block library cannot saturate the worker budget with doomed
// work.
type CircuitBreaker struct {
	state                int32 // atomic: CircuitBreakerState
	consecutiveFailures  int64 // atomic
	consecutiveSuccesses int64 // atomic
	failureThreshold     int64
	resetTimeout         time.Duration
	lastFailureTime      int64 // atomic: Unix nano timestamp
	mu                   sync.Mutex
}

// NewCircuitBreaker creates a breaker that opens after failureThreshold
// consecutive failures and probes again after resetTimeout.
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

// IsOpen reports whether the circuit currently blocks operations, moving to
// half-open once the reset timeout has elapsed.
func (cb *CircuitBreaker) IsOpen() bool {
	if CircuitBreakerState(atomic.LoadInt32(&cb.state)) != StateOpen {
		return false
	}
	lastFailure := atomic.LoadInt64(&cb.lastFailureTime)
	if lastFailure > 0 && time.Since(time.Unix(0, lastFailure)) > cb.resetTimeout {
		cb.transitionTo(StateHalfOpen)
		return false
	}
	return true
}

// RecordSuccess records a successful operation.
func (cb *CircuitBreaker) RecordSuccess() {
	atomic.StoreInt64(&cb.consecutiveFailures, 0)

	if CircuitBreakerState(atomic.LoadInt32(&cb.state)) == StateHalfOpen {
		if atomic.AddInt64(&cb.consecutiveSuccesses, 1) >= 5 {
			cb.transitionTo(StateClosed)
		}
	}
}

// RecordFailure records a failed operation, opening the circuit when the
// threshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	atomic.StoreInt64(&cb.consecutiveSuccesses, 0)
	atomic.StoreInt64(&cb.lastFailureTime, time.Now().UnixNano())

	failures := atomic.AddInt64(&cb.consecutiveFailures, 1)
	switch CircuitBreakerState(atomic.LoadInt32(&cb.state)) {
	case StateClosed:
		if failures >= cb.failureThreshold {
			cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	return CircuitBreakerState(atomic.LoadInt32(&cb.state))
}

// Reset returns the breaker to the closed state and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.transitionTo(StateClosed)
	atomic.StoreInt64(&cb.lastFailureTime, 0)
}

func (cb *CircuitBreaker) transitionTo(newState CircuitBreakerState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if CircuitBreakerState(atomic.LoadInt32(&cb.state)) == newState {
		return
	}
	atomic.StoreInt32(&cb.state, int32(newState))

	switch newState {
	case StateClosed:
		atomic.StoreInt64(&cb.consecutiveFailures, 0)
		atomic.StoreInt64(&cb.consecutiveSuccesses, 0)
	case StateHalfOpen:
		atomic.StoreInt64(&cb.consecutiveSuccesses, 0)
	}
}

// String returns the string representation of the state.
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
