// Package ratelimit provides the job-scoped token bucket and bounded
// concurrency gate that every task in a job acquires before fetching,
// using golang.org/x/time/rate for the token bucket and
// golang.org/x/sync/semaphore for the concurrency gate.
package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/metrics"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter bounds a job's outbound fetch rate and in-flight concurrency.
// Both bounds are shared across every task belonging to the job, not
// per-dealer.
type Limiter struct {
	tokens      *rate.Limiter
	concurrency *semaphore.Weighted
	inUse       atomic.Int64
}

// Config holds the two knobs a job is constructed with.
type Config struct {
	RequestsPerMinute int
	MaxConcurrency    int64
}

// DefaultConfig returns the standard production defaults.
func DefaultConfig() Config {
	return Config{RequestsPerMinute: 500, MaxConcurrency: 50}
}

// New builds a Limiter. RequestsPerMinute below 1 and MaxConcurrency below
// 1 fall back to DefaultConfig's values.
func New(cfg Config) *Limiter {
	rpm := cfg.RequestsPerMinute
	if rpm < 1 {
		rpm = DefaultConfig().RequestsPerMinute
	}
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency < 1 {
		maxConcurrency = DefaultConfig().MaxConcurrency
	}

	return &Limiter{
		tokens:      rate.NewLimiter(rate.Limit(rpm)/60, rpm),
		concurrency: semaphore.NewWeighted(maxConcurrency),
	}
}

// Acquire blocks until one rate-limit token is available and a
// concurrency slot is free, acquiring the token before entering the
// concurrency gate. It returns a release func to call once the caller's
// fetch completes, and propagates ctx cancellation at either suspension
// point.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	waitStart := time.Now()
	if err := l.tokens.Wait(ctx); err != nil {
		return nil, err
	}
	metrics.RateLimiterWaitSeconds.Observe(time.Since(waitStart).Seconds())

	if err := l.concurrency.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	metrics.ConcurrencyGateInUse.Set(float64(l.inUse.Add(1)))

	return func() {
		l.concurrency.Release(1)
		metrics.ConcurrencyGateInUse.Set(float64(l.inUse.Add(-1)))
	}, nil
}
