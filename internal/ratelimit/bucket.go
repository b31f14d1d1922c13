// Package ratelimit implements a FIFO token bucket for smoothing outbound
// request rates to a ceiling of C actions per P seconds.
package ratelimit

import (
	"context"
	"time"

	"gitlab.com/tozd/go/errors"
)

// Bucket enforces a ceiling of Capacity actions per RefillPeriod, smoothed
// over the period: one token is added every RefillPeriod/Capacity, capped
// at Capacity tokens outstanding. Acquire blocks until a token is available
// and never fails except through context cancellation.
//
// Waiters are released in FIFO order and a refilled token is handed
// directly to a waiting caller without first landing in the buffer, which
// Go's channel semantics already guarantee (a send to a channel with a
// blocked receiver delivers straight to that receiver).
type Bucket struct {
	tokens chan struct{}

	interval time.Duration

	stop    chan struct{}
	stopped chan struct{}
}

// New creates a bucket with the given capacity and refill period. The
// bucket starts full. A capacity of zero or a non-positive refill period
// disables rate limiting: Acquire always returns immediately.
func New(capacity int, refillPeriod time.Duration) *Bucket {
	if capacity <= 0 || refillPeriod <= 0 {
		return nil
	}

	b := &Bucket{
		tokens:   make(chan struct{}, capacity),
		interval: refillPeriod / time.Duration(capacity),
	}
	for range capacity {
		b.tokens <- struct{}{}
	}
	return b
}

// Start launches the background refill goroutine. It is a no-op on a nil
// Bucket (unlimited mode) and on a Bucket that is already started.
func (b *Bucket) Start() {
	if b == nil || b.stop != nil {
		return
	}
	b.stop = make(chan struct{})
	b.stopped = make(chan struct{})

	go func() {
		defer close(b.stopped)
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		for {
			select {
			case <-b.stop:
				return
			case <-ticker.C:
				select {
				case b.tokens <- struct{}{}:
				default:
					// Already at capacity; this tick's token is dropped.
				}
			}
		}
	}()
}

// Stop halts the background refill goroutine and waits for it to exit.
// It is a no-op on a nil Bucket or one that was never started.
func (b *Bucket) Stop() {
	if b == nil || b.stop == nil {
		return
	}
	close(b.stop)
	<-b.stopped
	b.stop = nil
}

// Acquire blocks until a token is available or ctx is done.
func (b *Bucket) Acquire(ctx context.Context) errors.E {
	if b == nil {
		return nil
	}
	select {
	case <-b.tokens:
		return nil
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}
