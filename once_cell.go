package usync

import (
	"unsafe"

	"github.com/llxisdsh/usync/internal/opt"
)

// OnceCell states. Parked goroutines only ever wait on onceQueued, so an
// initializer that finishes with no audience skips the wake.
const (
	onceEmpty  = iota
	onceBusy   // an initializer runs, nobody parked
	onceQueued // an initializer runs, goroutines parked
	onceReady
)

// OnceCell is a cell that is written at most once.
//
// Get never blocks. Set and GetOrInit race to be the single writer; losers
// of the race either return the winner's value or park until it is
// published. Unlike sync.Once, a panicking initializer does not poison the
// cell: it is rolled back to empty, parked callers are woken, and one of
// them takes over.
//
// The zero value is an empty cell.
//
// Size: 4 bytes plus the value.
type OnceCell[T any] struct {
	_     noCopy
	state Futex
	value T
}

// Get returns the value and true if the cell has been set.
func (c *OnceCell[T]) Get() (*T, bool) {
	if c.state.Load() != onceReady {
		return nil, false
	}
	if opt.Race_ {
		opt.RaceAcquire(unsafe.Pointer(c))
	}
	return &c.value, true
}

// Set writes value if the cell is still empty and reports whether it did.
// It blocks while another goroutine's initializer is running.
func (c *OnceCell[T]) Set(value T) bool {
	for {
		switch c.state.Load() {
		case onceReady:
			return false
		case onceEmpty:
			if c.state.CompareAndSwap(onceEmpty, onceBusy) {
				c.publish(value)
				return true
			}
		default:
			c.waitBusy()
		}
	}
}

// GetOrInit returns the value, running fn to produce it if the cell is
// empty. Exactly one caller runs fn; everyone else blocks until the value
// is published, then observes it. If fn panics, the panic propagates, the
// cell reopens, and a blocked caller retries with its own fn.
func (c *OnceCell[T]) GetOrInit(fn func() T) *T {
	for {
		switch c.state.Load() {
		case onceReady:
			if opt.Race_ {
				opt.RaceAcquire(unsafe.Pointer(c))
			}
			return &c.value
		case onceEmpty:
			if c.state.CompareAndSwap(onceEmpty, onceBusy) {
				c.publish(c.protect(fn))
				return &c.value
			}
		default:
			c.waitBusy()
		}
	}
}

// publish stores the value and flips the cell to ready. Caller owns the
// busy state.
func (c *OnceCell[T]) publish(value T) {
	c.value = value
	if opt.Race_ {
		opt.RaceRelease(unsafe.Pointer(c))
	}
	if c.state.Swap(onceReady) == onceQueued {
		c.state.WakeAll()
	}
}

// protect runs fn; on panic it reopens the cell, wakes the parked callers
// so one can take over, and rethrows.
func (c *OnceCell[T]) protect(fn func() T) T {
	defer func() {
		if r := recover(); r != nil {
			if c.state.Swap(onceEmpty) == onceQueued {
				c.state.WakeAll()
			}
			panic(r)
		}
	}()
	return fn()
}

// waitBusy parks until the running initializer publishes or bails.
func (c *OnceCell[T]) waitBusy() {
	s := c.state.Load()
	for s == onceBusy || s == onceQueued {
		if s == onceBusy && !c.state.CompareAndSwap(onceBusy, onceQueued) {
			s = c.state.Load()
			continue
		}
		c.state.Wait(onceQueued)
		s = c.state.Load()
	}
}
