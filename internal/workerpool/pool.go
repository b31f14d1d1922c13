// Package workerpool implements the bounded-parallelism task runner used
// throughout the site engine: a blocking queue of zero-argument tasks
// drained by a fixed number of workers, each sleeping an inter-job delay
// between tasks. Cancellation is cooperative, observed only between tasks,
// matching spec.md §5's "suspension points" model.
package workerpool

import (
	"context"
	"sync"
	"time"

	"gitlab.com/tozd/go/errors"
)

// Task is a unit of work submitted to a Pool.
type Task func(ctx context.Context) errors.E

// Pool is a LIFO queue of tasks drained by a bounded number of workers.
// Popping the most recently added task (rather than FIFO) matches the
// reference "blockingQueue" behaviour: a worker that just finished a task
// prefers freshly discovered work over older backlog.
type Pool struct {
	delay   time.Duration
	maxJobs int // 0 means unbounded (limited only by the n passed to Run)

	mu    sync.Mutex
	tasks []Task
}

// New creates a Pool with the given inter-job delay and an optional cap on
// concurrent workers (0 disables the cap).
func New(delay time.Duration, maxJobs int) *Pool {
	return &Pool{delay: delay, maxJobs: maxJobs}
}

// Add appends a task to the queue. Safe to call while Run is in progress.
func (p *Pool) Add(t Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, t)
}

// Len reports the number of tasks still queued.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

func (p *Pool) pop() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.tasks) == 0 {
		return nil, false
	}
	last := len(p.tasks) - 1
	t := p.tasks[last]
	p.tasks = p.tasks[:last]
	return t, true
}

// Run starts min(n, maxJobs) workers (or n, when maxJobs is 0) and blocks
// until every worker has observed an empty queue. Tasks added to the pool
// (by Add, including from inside a running task) after Run has started are
// picked up by any worker still polling. Errors from individual tasks are
// collected and returned together; one task failing does not stop other
// workers from continuing to drain the queue.
func (p *Pool) Run(ctx context.Context, n int) []errors.E {
	workers := n
	if p.maxJobs > 0 && p.maxJobs < workers {
		workers = p.maxJobs
	}
	if workers <= 0 {
		return nil
	}

	var (
		wg     sync.WaitGroup
		errsMu sync.Mutex
		errs   []errors.E
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				task, ok := p.pop()
				if !ok {
					return
				}
				if err := task(ctx); err != nil {
					errsMu.Lock()
					errs = append(errs, err)
					errsMu.Unlock()
				}
				if p.delay > 0 {
					select {
					case <-time.After(p.delay):
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	return errs
}
