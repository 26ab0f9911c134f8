package usync

import (
	"sync/atomic"
)

// ticketLock is a fair FIFO spin-lock guarding a single futex wait queue.
//
// Queue critical sections are a handful of pointer moves, so spinning beats
// parking, and ticket order keeps lock handoff in arrival order: waiters
// enqueue exactly in the order they started blocking.
//
// Size: 8 bytes.
type ticketLock struct {
	next    atomic.Uint32
	serving atomic.Uint32
}

// lock acquires the lock. Blocks until the lock is available.
func (l *ticketLock) lock() {
	my := l.next.Add(1) - 1
	var spins int
	for l.serving.Load() != my {
		delay(&spins)
	}
}

// unlock releases the lock, handing it to the next ticket holder.
func (l *ticketLock) unlock() {
	l.serving.Add(1)
}
