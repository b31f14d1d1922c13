package httpclient

import (
	"sync"
	"sync/atomic"
	"time"
)

// watchdogInterval is how often the pool checks slots for a missed heartbeat.
const watchdogInterval = time.Second

// lockupTimeout is how long a slot can go without a heartbeat before the
// watchdog force-unlocks it.
const lockupTimeout = 10 * time.Second

// slot is one fixed connection slot. token increases every time the slot is
// (re)acquired so a heartbeat or release from a previous holder, arriving
// late, can be told apart from the current holder's.
type slot struct {
	mu           sync.Mutex
	locked       bool
	token        uint64
	lastActivity time.Time
}

// Pool is the fixed-size connection slot pool from spec.md §4.3: acquire()
// returns the first idle slot or waits on a FIFO queue, and a 1 Hz watchdog
// force-unlocks any slot that stops heartbeating for 10 seconds. Grounded on
// the same "fixed worker count, FIFO waiters" shape as internal/workerpool,
// specialised here to per-slot liveness tracking instead of task dispatch.
type Pool struct {
	slots   []*slot
	waiters chan chan *Lease
	lockups atomic.Int64

	stop    chan struct{}
	stopped chan struct{}
}

// NewPool creates a Pool with n connection slots and starts its watchdog.
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{
		slots:   make([]*slot, n),
		waiters: make(chan chan *Lease, 4096),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for i := range p.slots {
		p.slots[i] = &slot{}
	}
	go p.watchdog()
	return p
}

// Lease is a held connection slot. Callers must call Heartbeat while
// actively reading/writing and Release exactly once when done.
type Lease struct {
	pool  *Pool
	slot  *slot
	token uint64
}

// Lockups reports how many times the watchdog has had to force-unlock a
// slot, matching spec.md's "bumped lockups counter is reported".
func (p *Pool) Lockups() int64 { return p.lockups.Load() }

// Acquire returns a Lease on the first idle slot, or blocks until one frees
// up, served in FIFO order relative to other waiting Acquire calls.
func (p *Pool) Acquire() *Lease {
	if lease := p.tryAcquireAny(); lease != nil {
		return lease
	}

	ch := make(chan *Lease, 1)
	p.waiters <- ch
	return <-ch
}

func (p *Pool) tryAcquireAny() *Lease {
	for _, s := range p.slots {
		s.mu.Lock()
		if !s.locked {
			s.locked = true
			s.token++
			s.lastActivity = time.Now()
			token := s.token
			s.mu.Unlock()
			return &Lease{pool: p, slot: s, token: token}
		}
		s.mu.Unlock()
	}
	return nil
}

// Heartbeat records activity on the lease's slot, resetting the watchdog's
// 10-second lockup timer.
func (l *Lease) Heartbeat() {
	l.slot.mu.Lock()
	if l.slot.locked && l.slot.token == l.token {
		l.slot.lastActivity = time.Now()
	}
	l.slot.mu.Unlock()
}

// Release frees the slot and hands it to the next FIFO waiter, if any.
func (l *Lease) Release() {
	l.pool.release(l.slot, l.token)
}

func (p *Pool) release(s *slot, token uint64) {
	s.mu.Lock()
	if s.locked && s.token == token {
		s.locked = false
	}
	s.mu.Unlock()
	p.dispatchToWaiter()
}

// dispatchToWaiter hands a freshly freed slot to the oldest waiter, if any
// is queued; the waiters channel is itself the FIFO, since Go channels
// deliver to blocked receivers in send order.
func (p *Pool) dispatchToWaiter() {
	select {
	case ch := <-p.waiters:
		lease := p.tryAcquireAny()
		if lease == nil {
			// Lost the race to another releaser; put the waiter back at the
			// front of the line is not possible with a channel, so requeue
			// it at the back and let it try again on the next release.
			p.waiters <- ch
			return
		}
		ch <- lease
	default:
	}
}

func (p *Pool) watchdog() {
	defer close(p.stopped)
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

func (p *Pool) sweep() {
	now := time.Now()
	for _, s := range p.slots {
		s.mu.Lock()
		if s.locked && now.Sub(s.lastActivity) > lockupTimeout {
			s.locked = false
			p.lockups.Add(1)
			s.mu.Unlock()
			p.dispatchToWaiter()
			continue
		}
		s.mu.Unlock()
	}
}

// Stop halts the watchdog goroutine. It does not release held leases.
func (p *Pool) Stop() {
	close(p.stop)
	<-p.stopped
}
