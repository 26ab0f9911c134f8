package usync

import (
	"sync/atomic"
)

// Condvar is a condition variable for use with Mutex.
//
// It keeps a monotonic notification counter in a futex cell. Wait snapshots
// the counter before releasing the mutex and parks until it moves, so a
// notification between unlock and park is never lost. A separate waiter
// count lets the notify methods return without touching the counter or the
// wait table when nobody is blocked, which keeps notify-heavy code with
// rare waiters cheap.
//
// The counter may wrap; only inequality matters.
//
// Size: 8 bytes.
type Condvar struct {
	_       noCopy
	seq     Futex
	waiters atomic.Int32
}

// NotifyOne wakes one goroutine blocked in Wait, if any.
func (c *Condvar) NotifyOne() {
	if c.waiters.Load() > 0 {
		c.seq.Add(1)
		c.seq.WakeOne()
	}
}

// NotifyAll wakes every goroutine blocked in Wait.
func (c *Condvar) NotifyAll() {
	if c.waiters.Load() > 0 {
		c.seq.Add(1)
		c.seq.WakeAll()
	}
}

// Wait atomically releases g's mutex and blocks the caller until another
// goroutine calls NotifyOne or NotifyAll, then re-acquires the mutex.
// The guard stays valid and is locked again when Wait returns.
//
// Returns do not imply anything about the protected value, and spurious
// returns are allowed: re-check the condition in a loop, or use WaitUntil.
func Wait[T any](c *Condvar, g *Guard[T]) {
	m := g.m
	if m == nil {
		panic("usync: Wait with invalid Guard")
	}
	// Register before unlocking. A notifier that mutates the condition
	// under this mutex and then checks the waiter count is thereby
	// guaranteed to see us, or we already saw its change of the counter.
	c.waiters.Add(1)
	seq := c.seq.Load()
	m.unlock()
	c.seq.Wait(seq)
	c.waiters.Add(-1)
	m.lock()
}

// WaitUntil blocks, releasing the mutex while parked, until cond reports
// true of the protected value. The mutex is held every time cond runs and
// when WaitUntil returns.
func WaitUntil[T any](c *Condvar, g *Guard[T], cond func(*T) bool) {
	for !cond(g.Value()) {
		Wait(c, g)
	}
}
