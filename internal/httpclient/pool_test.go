package httpclient

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquireReleaseReusesSlot(t *testing.T) {
	p := NewPool(1)
	defer p.Stop()

	l1 := p.Acquire()
	l1.Release()
	l2 := p.Acquire()
	assert.Same(t, l1.slot, l2.slot)
	l2.Release()
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	p := NewPool(1)
	defer p.Stop()

	l1 := p.Acquire()
	acquired := make(chan struct{})
	go func() {
		l2 := p.Acquire()
		close(acquired)
		l2.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire should not complete before Release")
	case <-time.After(30 * time.Millisecond):
	}

	l1.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never completed after Release")
	}
}

func TestWatchdogForcesUnlockAfterLockupTimeout(t *testing.T) {
	p := &Pool{
		slots:   []*slot{{}},
		waiters: make(chan chan *Lease, 4),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go p.watchdog()
	defer p.Stop()

	p.slots[0].locked = true
	p.slots[0].lastActivity = time.Now().Add(-lockupTimeout - time.Second)

	assert.Eventually(t, func() bool {
		return p.Lockups() == 1
	}, time.Second, 5*time.Millisecond)

	p.slots[0].mu.Lock()
	locked := p.slots[0].locked
	p.slots[0].mu.Unlock()
	assert.False(t, locked)
}

func TestConcurrentAcquireReleaseNeverDeadlocks(t *testing.T) {
	p := NewPool(2)
	defer p.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := p.Acquire()
			l.Heartbeat()
			time.Sleep(time.Millisecond)
			l.Release()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("acquire/release workload did not complete")
	}
}
