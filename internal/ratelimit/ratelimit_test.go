package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AppliesDefaultsWhenUnset(t *testing.T) {
	l := New(Config{})
	assert.NotNil(t, l.tokens)
	assert.NotNil(t, l.concurrency)
}

func TestAcquire_BoundsInFlightConcurrency(t *testing.T) {
	l := New(Config{RequestsPerMinute: 6000, MaxConcurrency: 2})

	var inFlight, maxSeen int32
	release := func() {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxSeen)
			if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	}

	done := make(chan struct{})
	for i := 0; i < 6; i++ {
		go func() {
			rel, err := l.Acquire(context.Background())
			require.NoError(t, err)
			release()
			rel()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}

	assert.LessOrEqual(t, atomic.LoadInt32(&maxSeen), int32(2))
}

func TestAcquire_PropagatesCancellation(t *testing.T) {
	l := New(Config{RequestsPerMinute: 1, MaxConcurrency: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Acquire(ctx)
	require.Error(t, err)
}
