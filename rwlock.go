package usync

import (
	"unsafe"

	"github.com/llxisdsh/usync/internal/opt"
)

const (
	// rwWriteLocked is the state sentinel for a held write lock.
	rwWriteLocked = ^uint32(0)
	// rwMaxReaders bounds concurrent read locks; beyond it the packed
	// state would collide with the sentinel.
	rwMaxReaders = 1 << 30
)

// RwLock is a reader-writer lock that owns the value it protects.
//
// state packing: number of read locks times two, plus one if a writer is
// waiting; rwWriteLocked when write-locked. Keeping "writer waiting" inside
// the same cell lets an arriving reader decide to queue up with a single
// load, which is what prevents writer starvation: once a writer has set
// the odd bit, new readers park instead of piling on.
//
// wake is a counter cell writers park on. Readers sleeping on state and
// writers sleeping on wake are separate populations, so the last departing
// reader can wake exactly one writer without disturbing parked readers.
//
// The zero value is an unlocked lock over the zero value of T.
//
// Size: 8 bytes plus the value.
type RwLock[T any] struct {
	_     noCopy
	state Futex
	wake  Futex
	value T
}

// NewRwLock returns an unlocked lock owning value.
func NewRwLock[T any](value T) *RwLock[T] {
	return &RwLock[T]{value: value}
}

// Read acquires a shared read lock. It blocks while a writer holds the
// lock or is waiting for it.
func (rw *RwLock[T]) Read() ReadGuard[T] {
	s := rw.state.Load()
	for {
		if s%2 == 0 {
			if s >= rwMaxReaders<<1 {
				panic("usync: too many concurrent readers")
			}
			if rw.state.CompareAndSwap(s, s+2) {
				if opt.Race_ {
					opt.RaceAcquire(unsafe.Pointer(rw))
				}
				return ReadGuard[T]{rw: rw}
			}
			s = rw.state.Load()
			continue
		}
		// Odd: a writer holds the lock or is waiting. Park behind it and
		// reload; the write unlock broadcasts on the state cell.
		rw.state.Wait(s)
		s = rw.state.Load()
	}
}

// Write acquires the exclusive write lock. It blocks until every reader
// has left and no other writer holds the lock.
func (rw *RwLock[T]) Write() WriteGuard[T] {
	s := rw.state.Load()
	for {
		// Free, apart from possibly our own waiting bit: take it.
		if s <= 1 {
			if rw.state.CompareAndSwap(s, rwWriteLocked) {
				if opt.Race_ {
					opt.RaceAcquire(unsafe.Pointer(rw))
				}
				return WriteGuard[T]{rw: rw}
			}
			s = rw.state.Load()
			continue
		}
		// Readers inside and the bit clear: set it to stop new readers.
		if s%2 == 0 {
			if !rw.state.CompareAndSwap(s, s+1) {
				s = rw.state.Load()
				continue
			}
		}
		// Sleep on the wake counter, re-checking state in between. The
		// snapshot-before-recheck order closes the usual lost-wake race.
		w := rw.wake.Load()
		s = rw.state.Load()
		if s >= 2 {
			rw.wake.Wait(w)
			s = rw.state.Load()
		}
	}
}

// ReadGuard grants shared access to an RwLock's value until Unlock.
// Any number of read guards can be live at once; holders must treat the
// value as read-only. A guard must not be copied.
type ReadGuard[T any] struct {
	_  noCopy
	rw *RwLock[T]
}

// Value returns the protected value. The pointer is valid only until
// Unlock, and must not be written through.
func (g *ReadGuard[T]) Value() *T {
	if g.rw == nil {
		panic("usync: ReadGuard used after Unlock")
	}
	return &g.rw.value
}

// Unlock releases the read lock and invalidates the guard.
func (g *ReadGuard[T]) Unlock() {
	rw := g.rw
	if rw == nil {
		panic("usync: Unlock of invalid ReadGuard")
	}
	g.rw = nil
	if opt.Race_ {
		opt.RaceReleaseMerge(unsafe.Pointer(rw))
	}
	n := rw.state.Add(^uint32(1))
	if n >= rwWriteLocked-2 {
		// Wrapped past zero readers: no read lock was held.
		panic("usync: read Unlock of unlocked RwLock")
	}
	// Landing on 1 means this was the last reader and a writer waits:
	// hand over through the writer channel.
	if n == 1 {
		rw.wake.Add(1)
		rw.wake.WakeOne()
	}
}

// WriteGuard grants exclusive access to an RwLock's value until Unlock.
// A guard must not be copied.
type WriteGuard[T any] struct {
	_  noCopy
	rw *RwLock[T]
}

// Value returns the protected value. The pointer is valid only until
// Unlock.
func (g *WriteGuard[T]) Value() *T {
	if g.rw == nil {
		panic("usync: WriteGuard used after Unlock")
	}
	return &g.rw.value
}

// Unlock releases the write lock and invalidates the guard.
func (g *WriteGuard[T]) Unlock() {
	rw := g.rw
	if rw == nil {
		panic("usync: Unlock of invalid WriteGuard")
	}
	g.rw = nil
	if opt.Race_ {
		opt.RaceRelease(unsafe.Pointer(rw))
	}
	if rw.state.Swap(0) != rwWriteLocked {
		panic("usync: write Unlock of unlocked RwLock")
	}
	// A departing writer cannot tell who is parked, so it nudges one
	// writer through the counter and every reader through the state cell;
	// whichever side loses the race re-checks and sleeps again.
	rw.wake.Add(1)
	rw.wake.WakeOne()
	rw.state.WakeAll()
}
