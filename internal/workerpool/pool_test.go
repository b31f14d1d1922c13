package workerpool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gitlab.com/tozd/go/errors"

	"github.com/x10102/wikicomma-sub000/internal/workerpool"
)

func TestRunDrainsAllTasks(t *testing.T) {
	p := workerpool.New(0, 0)
	var count int64
	for range 50 {
		p.Add(func(_ context.Context) errors.E {
			atomic.AddInt64(&count, 1)
			return nil
		})
	}

	errs := p.Run(context.Background(), 8)
	assert.Empty(t, errs)
	assert.EqualValues(t, 50, atomic.LoadInt64(&count))
	assert.Equal(t, 0, p.Len())
}

func TestRunRespectsMaxJobsCap(t *testing.T) {
	p := workerpool.New(0, 2)
	var concurrent, maxConcurrent int64
	var mu sync.Mutex
	for range 10 {
		p.Add(func(_ context.Context) errors.E {
			cur := atomic.AddInt64(&concurrent, 1)
			mu.Lock()
			if cur > maxConcurrent {
				maxConcurrent = cur
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&concurrent, -1)
			return nil
		})
	}

	p.Run(context.Background(), 10)
	assert.LessOrEqual(t, maxConcurrent, int64(2))
}

func TestRunCollectsErrors(t *testing.T) {
	p := workerpool.New(0, 0)
	p.Add(func(_ context.Context) errors.E { return errors.New("boom") })
	p.Add(func(_ context.Context) errors.E { return nil })

	errs := p.Run(context.Background(), 2)
	assert.Len(t, errs, 1)
}

func TestRunStopsOnCancellation(t *testing.T) {
	p := workerpool.New(10*time.Millisecond, 0)
	ctx, cancel := context.WithCancel(context.Background())
	var ran int64
	for range 100 {
		p.Add(func(_ context.Context) errors.E {
			atomic.AddInt64(&ran, 1)
			return nil
		})
	}
	cancel()
	p.Run(ctx, 4)
	assert.Less(t, ran, int64(100))
}
