// Package concurrency provides the bounded worker budget used by the
// execution engine: a semaphore-based limiter with observability metrics and
// a circuit breaker, plus environment-driven sizing helpers.
package concurrency

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Metrics tracks limiter performance counters.
type Metrics struct {
	TotalAcquired   int64
	TotalReleased   int64
	PeakConcurrent  int64
	TotalWaitTimeNs int64
}

// Limiter bounds the number of node executions in flight for a run. Workers
// acquire a slot before executing and release it when done; the limiter also
// records wait time and peak concurrency for observability.
//
// The circuit breaker records outcomes only through RunSync. Callers that use
// Acquire and Release directly get the breaker's open-state check on Acquire
// but must record successes and failures themselves if they want it to trip.
type Limiter struct {
	sem            chan struct{}
	active         int64
	metrics        *Metrics
	circuitBreaker *CircuitBreaker
}

// NewLimiter creates a limiter allowing at most maxConcurrent executions.
func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{
		sem:            make(chan struct{}, maxConcurrent),
		metrics:        &Metrics{},
		circuitBreaker: NewCircuitBreaker(100, 30*time.Second),
	}
}

// NewLimiterWithCircuitBreaker creates a limiter with custom breaker settings.
func NewLimiterWithCircuitBreaker(maxConcurrent int, cb *CircuitBreaker) *Limiter {
	l := NewLimiter(maxConcurrent)
	l.circuitBreaker = cb
	return l
}

// Acquire blocks until a slot is available or the context ends. Returns an
// error immediately when the circuit breaker is open.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.circuitBreaker.IsOpen() {
		return fmt.Errorf("circuit breaker is open")
	}

	start := time.Now()
	select {
	case l.sem <- struct{}{}:
		atomic.AddInt64(&l.metrics.TotalWaitTimeNs, time.Since(start).Nanoseconds())
		atomic.AddInt64(&l.metrics.TotalAcquired, 1)
		l.updatePeak(atomic.AddInt64(&l.active, 1))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot to the limiter.
func (l *Limiter) Release() {
	select {
	case <-l.sem:
		atomic.AddInt64(&l.active, -1)
		atomic.AddInt64(&l.metrics.TotalReleased, 1)
	default:
		// Unbalanced Release; nothing to return.
	}
}

// RunSync executes fn under a slot and records the outcome with the breaker.
func (l *Limiter) RunSync(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()

	if err := fn(); err != nil {
		l.circuitBreaker.RecordFailure()
		return err
	}
	l.circuitBreaker.RecordSuccess()
	return nil
}

// CurrentActive returns the number of slots currently held.
func (l *Limiter) CurrentActive() int64 {
	return atomic.LoadInt64(&l.active)
}

// Capacity returns the maximum number of concurrent executions.
func (l *Limiter) Capacity() int {
	return cap(l.sem)
}

// GetMetrics returns a copy of the current metrics.
func (l *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalAcquired:   atomic.LoadInt64(&l.metrics.TotalAcquired),
		TotalReleased:   atomic.LoadInt64(&l.metrics.TotalReleased),
		PeakConcurrent:  atomic.LoadInt64(&l.metrics.PeakConcurrent),
		TotalWaitTimeNs: atomic.LoadInt64(&l.metrics.TotalWaitTimeNs),
	}
}

// AverageWaitTime reports the mean time spent waiting for a slot.
func (l *Limiter) AverageWaitTime() time.Duration {
	m := l.GetMetrics()
	if m.TotalAcquired == 0 {
		return 0
	}
	return time.Duration(m.TotalWaitTimeNs / m.TotalAcquired)
}

func (l *Limiter) updatePeak(current int64) {
	for {
		peak := atomic.LoadInt64(&l.metrics.PeakConcurrent)
		if current <= peak {
			return
		}
		if atomic.CompareAndSwapInt64(&l.metrics.PeakConcurrent, peak, current) {
			return
		}
	}
}
