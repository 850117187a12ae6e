// Package concurrency provides the execution-gating primitives shared by
// the task runtimes: a semaphore-based limiter with observability, a
// circuit breaker, and environment-driven configuration.
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

// Limiter provides semaphore-based concurrency control with observability.
// Pool workers acquire a slot before executing a unit and release it after,
// so the number of in-flight evaluations never exceeds the configured cap.
type Limiter struct {
	sem            chan struct{}
	active         atomic.Int64
	acquired       atomic.Int64
	released       atomic.Int64
	peak           atomic.Int64
	waitNs         atomic.Int64
	circuitBreaker *CircuitBreaker
}

// NewLimiter creates a limiter with the specified maximum concurrent operations.
func NewLimiter(maxConcurrent int) *Limiter {
	// 100 failures in 30s opens the circuit
	return NewLimiterWithCircuitBreaker(maxConcurrent, NewCircuitBreaker(100, 30*time.Second))
}

// NewLimiterWithCircuitBreaker creates a limiter with custom circuit breaker settings.
func NewLimiterWithCircuitBreaker(maxConcurrent int, cb *CircuitBreaker) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{
		sem:            make(chan struct{}, maxConcurrent),
		circuitBreaker: cb,
	}
}

// Acquire attempts to acquire a slot, waiting until one is free or the
// context is cancelled. Returns an error if the circuit breaker is open.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.circuitBreaker.IsOpen() {
		return fmt.Errorf("circuit breaker is open")
	}

	start := time.Now()

	select {
	case l.sem <- struct{}{}:
		l.waitNs.Add(time.Since(start).Nanoseconds())
		l.acquired.Add(1)
		l.updatePeak(l.active.Add(1))
		return nil

	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release releases a slot back to the limiter.
func (l *Limiter) Release() {
	select {
	case <-l.sem:
		l.active.Add(-1)
		l.released.Add(1)
	default:
		// Should not happen in correct usage
	}
}

// GoSync executes a function synchronously under the limiter, recording the
// outcome to the circuit breaker.
func (l *Limiter) GoSync(ctx context.Context, fn func() error) error {
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

// CurrentActive returns the current number of held slots.
func (l *Limiter) CurrentActive() int64 {
	return l.active.Load()
}

// GetMetrics returns a snapshot of the limiter counters.
func (l *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalAcquired:   l.acquired.Load(),
		TotalReleased:   l.released.Load(),
		PeakConcurrent:  l.peak.Load(),
		TotalWaitTimeNs: l.waitNs.Load(),
	}
}

// GetAverageWaitTime calculates the average wait time for acquiring a slot.
func (l *Limiter) GetAverageWaitTime() time.Duration {
	m := l.GetMetrics()
	if m.TotalAcquired == 0 {
		return 0
	}
	return time.Duration(m.TotalWaitTimeNs / m.TotalAcquired)
}

// Reset resets the metrics.
func (l *Limiter) Reset() {
	l.acquired.Store(0)
	l.released.Store(0)
	l.peak.Store(0)
	l.waitNs.Store(0)
}

// GetCircuitBreakerState returns the current state of the circuit breaker.
func (l *Limiter) GetCircuitBreakerState() string {
	if l.circuitBreaker.IsOpen() {
		return "open"
	}
	return "closed"
}

// updatePeak raises the peak concurrency watermark if current exceeds it.
func (l *Limiter) updatePeak(current int64) {
	for {
		peak := l.peak.Load()
		if current <= peak {
			return
		}
		if l.peak.CompareAndSwap(peak, current) {
			return
		}
	}
}
