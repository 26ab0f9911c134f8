package usync

import (
	"sync/atomic"
	"unsafe"

	"github.com/llxisdsh/usync/internal/opt"
)

const (
	// arcFrozen pins the allocation counter while GetMut inspects the
	// strong counter, so no Weak can be minted between the two checks.
	arcFrozen = ^uint64(0)
	// arcMaxRefs is the largest believable handle count. A counter beyond
	// it means handles are being leaked in a loop; the process aborts
	// before the counter can wrap and free live data.
	arcMaxRefs = arcFrozen >> 1
)

// arcShared is the heap block an Arc and its Weaks share.
type arcShared[T any] struct {
	// strong counts Arc handles. The payload dies when it hits zero.
	strong atomic.Uint64
	// alloc counts Weak handles, plus one held jointly by all Arcs.
	alloc atomic.Uint64
	drop  func(*T)
	value T
}

// Arc is an atomically reference-counted handle to a shared value.
//
// Clone mints additional handles; the value stays alive until every strong
// handle has been released, at which point the drop hook (if any) runs
// exactly once and the value slot is zeroed. Weak handles observe the
// value's lifetime without extending it.
//
// A handle may be used from multiple goroutines concurrently; Release must
// be its last use. After Release the handle is dead and any use panics.
type Arc[T any] struct {
	inner *arcShared[T]
}

// Weak is a non-owning handle to an Arc's value. It keeps the shared
// bookkeeping alive but not the value: once the last strong handle is
// gone, Upgrade returns nil forever.
type Weak[T any] struct {
	inner *arcShared[T]
}

// NewArc returns the first strong handle to value.
func NewArc[T any](value T) *Arc[T] {
	return NewArcWithDrop(value, nil)
}

// NewArcWithDrop is NewArc with a destructor: drop runs exactly once, with
// the value still intact, when the last strong handle is released.
func NewArcWithDrop[T any](value T, drop func(*T)) *Arc[T] {
	d := &arcShared[T]{drop: drop, value: value}
	d.strong.Store(1)
	d.alloc.Store(1)
	return &Arc[T]{inner: d}
}

func (a *Arc[T]) data() *arcShared[T] {
	d := a.inner
	if d == nil {
		panic("usync: use of released Arc")
	}
	return d
}

// Value returns the shared value. The pointer stays valid while any strong
// handle is live; treat it as read-only unless it came from GetMut.
func (a *Arc[T]) Value() *T {
	return &a.data().value
}

// Clone mints another strong handle to the same value.
func (a *Arc[T]) Clone() *Arc[T] {
	d := a.data()
	if d.strong.Add(1) > arcMaxRefs {
		fatal("usync: Arc counter overflow")
	}
	return &Arc[T]{inner: d}
}

// Release drops this handle. When the last strong handle goes, the drop
// hook runs and the value slot is zeroed; live Weaks keep the bookkeeping
// block but can no longer upgrade. The handle must not be used afterwards.
func (a *Arc[T]) Release() {
	d := a.data()
	a.inner = nil
	if opt.Race_ {
		opt.RaceReleaseMerge(unsafe.Pointer(d))
	}
	if d.strong.Add(^uint64(0)) == 0 {
		if opt.Race_ {
			opt.RaceAcquire(unsafe.Pointer(d))
		}
		d.dropValue()
		// The strong handles' joint claim on the block dies with them.
		d.releaseAlloc()
	}
}

// Downgrade mints a weak handle. It spins while a GetMut holds the
// allocation counter frozen; the window is two atomic operations long.
func (a *Arc[T]) Downgrade() *Weak[T] {
	d := a.data()
	var spins int
	for {
		n := d.alloc.Load()
		if n == arcFrozen {
			delay(&spins)
			continue
		}
		if n > arcMaxRefs {
			fatal("usync: Weak counter overflow")
		}
		if d.alloc.CompareAndSwap(n, n+1) {
			return &Weak[T]{inner: d}
		}
	}
}

// GetMut returns the value for mutation if and only if a is the only
// handle of any kind, strong or weak. Otherwise it returns nil and the
// value is untouched.
//
// Freezing alloc first closes the classic two-check race: without it, a
// concurrent Downgrade and Upgrade on another goroutine could mint a new
// strong handle between our alloc and strong inspections.
func (a *Arc[T]) GetMut() *T {
	d := a.data()
	if !d.alloc.CompareAndSwap(1, arcFrozen) {
		return nil
	}
	unique := d.strong.Load() == 1
	d.alloc.Store(1)
	if !unique {
		return nil
	}
	if opt.Race_ {
		opt.RaceAcquire(unsafe.Pointer(d))
	}
	return &d.value
}

// dropValue runs the destructor and zeroes the slot, releasing whatever
// the value still references.
func (d *arcShared[T]) dropValue() {
	if d.drop != nil {
		d.drop(&d.value)
	}
	var zero T
	d.value = zero
}

func (d *arcShared[T]) releaseAlloc() {
	d.alloc.Add(^uint64(0))
	// Nothing to free by hand: once the counter is zero every handle has
	// dropped its pointer and the GC collects the block.
}

func (w *Weak[T]) data() *arcShared[T] {
	d := w.inner
	if d == nil {
		panic("usync: use of released Weak")
	}
	return d
}

// Clone mints another weak handle.
func (w *Weak[T]) Clone() *Weak[T] {
	d := w.data()
	if d.alloc.Add(1) > arcMaxRefs {
		fatal("usync: Weak counter overflow")
	}
	return &Weak[T]{inner: d}
}

// Upgrade returns a new strong handle, or nil if the value is already
// gone. It never blocks.
func (w *Weak[T]) Upgrade() *Arc[T] {
	d := w.data()
	for {
		n := d.strong.Load()
		if n == 0 {
			return nil
		}
		if n > arcMaxRefs {
			fatal("usync: Arc counter overflow")
		}
		if d.strong.CompareAndSwap(n, n+1) {
			return &Arc[T]{inner: d}
		}
	}
}

// Release drops the weak handle. It must not be used afterwards.
func (w *Weak[T]) Release() {
	d := w.data()
	w.inner = nil
	d.releaseAlloc()
}
