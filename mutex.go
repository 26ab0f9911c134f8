package usync

import (
	"unsafe"

	"github.com/llxisdsh/usync/internal/opt"
)

// Mutex state. Waiters only ever park on mutexContended, so an uncontended
// unlock (state still mutexLocked) skips the wake entirely.
const (
	mutexUnlocked = iota
	mutexLocked    // held, nobody parked
	mutexContended // held, at least one goroutine parked or about to park
)

// Mutex is a mutual-exclusion lock that owns the value it protects: the
// only way to reach the value is through the Guard returned by Lock.
//
// The zero value is an unlocked mutex over the zero value of T.
//
// Properties:
//   - One CAS to lock, one Swap to unlock when uncontended.
//   - Unlock wakes a parked waiter only when one advertised itself,
//     so the uncontended path never touches the wait table.
//   - No spurious wakeup escapes Lock; no poisoning, no timeouts.
//
// Size: 4 bytes plus the value.
type Mutex[T any] struct {
	_     noCopy
	state Futex
	value T
}

// NewMutex returns an unlocked mutex owning value.
func NewMutex[T any](value T) *Mutex[T] {
	return &Mutex[T]{value: value}
}

// Lock acquires m and returns the guard granting access to the value.
// It blocks until the lock is available.
func (m *Mutex[T]) Lock() Guard[T] {
	m.lock()
	return Guard[T]{m: m}
}

func (m *Mutex[T]) lock() {
	if !m.state.CompareAndSwap(mutexUnlocked, mutexLocked) {
		m.lockSlow()
	}
	if opt.Race_ {
		opt.RaceAcquire(unsafe.Pointer(m))
	}
}

func (m *Mutex[T]) lockSlow() {
	// Spin briefly while the lock is held without waiters: if the owner is
	// about to leave, parking costs more than it saves. Once anyone parks
	// (state mutexContended) go straight to sleep instead of burning CPU.
	var spins int
	for m.state.Load() == mutexLocked && trySpin(&spins) {
	}
	if m.state.CompareAndSwap(mutexUnlocked, mutexLocked) {
		return
	}
	// Advertise a parked waiter, then sleep until the cell moves off
	// mutexContended. Re-acquiring with Swap(mutexContended) rather than
	// mutexLocked keeps the waiter flag alive for everyone parked behind
	// us; the surplus wake it causes on a quiet lock is benign.
	for m.state.Swap(mutexContended) != mutexUnlocked {
		m.state.Wait(mutexContended)
	}
}

func (m *Mutex[T]) unlock() {
	if opt.Race_ {
		opt.RaceRelease(unsafe.Pointer(m))
	}
	switch m.state.Swap(mutexUnlocked) {
	case mutexUnlocked:
		panic("usync: Unlock of unlocked Mutex")
	case mutexContended:
		m.state.WakeOne()
	}
}

// Guard grants exclusive access to a Mutex's value until Unlock.
//
// A Guard is owned by the goroutine that locked the mutex and must not be
// copied or shared. Unlock clears it, so using a guard after Unlock panics
// instead of silently touching an unprotected value.
type Guard[T any] struct {
	_ noCopy
	m *Mutex[T]
}

// Value returns the protected value. The pointer is valid only until
// Unlock.
func (g *Guard[T]) Value() *T {
	if g.m == nil {
		panic("usync: Guard used after Unlock")
	}
	return &g.m.value
}

// Unlock releases the mutex and invalidates the guard.
func (g *Guard[T]) Unlock() {
	m := g.m
	if m == nil {
		panic("usync: Unlock of invalid Guard")
	}
	g.m = nil
	m.unlock()
}
