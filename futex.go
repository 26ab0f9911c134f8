package usync

import (
	"sync/atomic"
	"unsafe"

	"github.com/llxisdsh/pb"

	"github.com/llxisdsh/usync/internal/opt"
)

// Futex is a 32-bit cell goroutines can block on, in the style of the Linux
// futex(2) FUTEX_WAIT / FUTEX_WAKE pair, implemented entirely in userspace
// on the runtime's goroutine parking.
//
// The embedded atomic.Uint32 is the cell itself; mutate it with the usual
// Load/Store/Add/Swap/CompareAndSwap. Wait and the wake methods are pure
// scheduling: they add no memory ordering of their own, so any ordering a
// caller needs must come from its atomic operations on the cell.
//
// Size: 4 bytes.
type Futex struct {
	atomic.Uint32
}

// Wait blocks the calling goroutine as long as the cell holds cmp.
//
// If the value differs from cmp at any point before the goroutine is put to
// sleep, Wait returns immediately. Spurious returns are allowed: callers
// must re-check their condition in a loop.
func (f *Futex) Wait(cmp uint32) {
	if f.Load() != cmp {
		return
	}
	futexWait(&f.Uint32, cmp)
}

// WakeOne unblocks one goroutine blocked in Wait on this cell, if any.
// With no waiters it is a single map lookup miss.
func (f *Futex) WakeOne() {
	futexWake(&f.Uint32, 1)
}

// WakeAll unblocks every goroutine blocked in Wait on this cell.
func (f *Futex) WakeAll() {
	futexWake(&f.Uint32, int(^uint(0)>>1))
}

// waiter is one goroutine parked on a cell. The queue link is guarded by
// the owning waitQueue's lock; sema is the runtime parking slot.
type waiter struct {
	next *waiter
	sema opt.Sema
}

// waitQueue is the FIFO of goroutines parked on one cell address.
//
// dead marks a queue that has been unlinked from the table. Whoever locks a
// dead queue must drop it and retry the table lookup: a waker may already
// have reaped it, and a fresh queue may exist for the same address.
//
// Padded so queues for neighboring cells never share a cache line.
type waitQueue struct {
	mu   ticketLock
	head *waiter
	tail *waiter
	dead bool
	_    [(opt.CacheLineSize_ - unsafe.Sizeof(struct {
		mu   ticketLock
		head *waiter
		tail *waiter
		dead bool
	}{})%opt.CacheLineSize_) % opt.CacheLineSize_]byte
}

// waitTable maps cell addresses to their wait queues. A queue exists only
// while goroutines are blocked, or in the act of blocking, on its address:
// the waiter or waker that empties a queue unlinks it in the same critical
// section, so a cell waited on once does not pin a table entry forever.
//
// Keying by bare address is safe. A blocked goroutine's frame keeps its
// cell reachable, and the entry is gone before the last waiter can return,
// so a recycled address never meets a stale live queue.
var waitTable pb.MapOf[uintptr, *waitQueue]

// futexWait parks the calling goroutine until a wake or a value change.
//
// The value re-check happens with the queue lock held. A waker changes the
// cell first and takes the same lock to scan for sleepers, so either the
// re-check observes the new value and bails, or the waiter is enqueued
// before the waker's scan and is woken by it. No window loses a wakeup.
func futexWait(cell *atomic.Uint32, cmp uint32) {
	addr := uintptr(unsafe.Pointer(cell))
	for {
		q, _ := waitTable.ProcessEntry(
			addr,
			func(l *pb.EntryOf[uintptr, *waitQueue]) (*pb.EntryOf[uintptr, *waitQueue], *waitQueue, bool) {
				if l != nil {
					return l, l.Value, true
				}
				nq := &waitQueue{}
				return &pb.EntryOf[uintptr, *waitQueue]{Value: nq}, nq, false
			},
		)
		q.mu.lock()
		if q.dead {
			q.mu.unlock()
			continue
		}
		if cell.Load() != cmp {
			// Lost the race with a store: do not sleep. Reap the queue if
			// this call is the only reason it exists.
			if q.head == nil {
				q.unlink(addr)
			}
			q.mu.unlock()
			return
		}
		w := &waiter{}
		if q.tail == nil {
			q.head = w
		} else {
			q.tail.next = w
		}
		q.tail = w
		q.mu.unlock()
		w.sema.Acquire()
		return
	}
}

// futexWake releases up to limit waiters parked on cell, front first.
func futexWake(cell *atomic.Uint32, limit int) {
	addr := uintptr(unsafe.Pointer(cell))
	for {
		q, ok := waitTable.Load(addr)
		if !ok {
			return
		}
		q.mu.lock()
		if q.dead {
			q.mu.unlock()
			continue
		}
		for limit > 0 && q.head != nil {
			w := q.head
			q.head = w.next
			if q.head == nil {
				q.tail = nil
			}
			limit--
			w.sema.Release()
		}
		if q.head == nil {
			q.unlink(addr)
		}
		q.mu.unlock()
		return
	}
}

// unlink unhooks q from the table. Caller holds q.mu and q must be empty.
// Delete-if-same: only the entry that still is q is removed.
func (q *waitQueue) unlink(addr uintptr) {
	q.dead = true
	_, _ = waitTable.ProcessEntry(
		addr,
		func(l *pb.EntryOf[uintptr, *waitQueue]) (*pb.EntryOf[uintptr, *waitQueue], *waitQueue, bool) {
			if l != nil && l.Value == q {
				return nil, nil, false
			}
			return l, nil, false
		},
	)
}
