package usync

import (
	"testing"
	"unsafe"

	"github.com/llxisdsh/usync/internal/opt"
)

func TestTypeSizes(t *testing.T) {
	ptr := unsafe.Sizeof(uintptr(0))
	cases := []struct {
		name string
		size uintptr
		want uintptr
	}{
		{"Futex", unsafe.Sizeof(Futex{}), 4},
		{"Condvar", unsafe.Sizeof(Condvar{}), 8},
		{"Mutex[uint32]", unsafe.Sizeof(Mutex[uint32]{}), 8},
		{"RwLock[uint32]", unsafe.Sizeof(RwLock[uint32]{}), 12},
		{"OnceCell[uint32]", unsafe.Sizeof(OnceCell[uint32]{}), 8},
		{"Guard[uint32]", unsafe.Sizeof(Guard[uint32]{}), ptr},
		{"ReadGuard[uint32]", unsafe.Sizeof(ReadGuard[uint32]{}), ptr},
		{"WriteGuard[uint32]", unsafe.Sizeof(WriteGuard[uint32]{}), ptr},
		{"Arc[uint32]", unsafe.Sizeof(Arc[uint32]{}), ptr},
		{"Weak[uint32]", unsafe.Sizeof(Weak[uint32]{}), ptr},
		{"ticketLock", unsafe.Sizeof(ticketLock{}), 8},
	}
	for _, c := range cases {
		if c.size != c.want {
			t.Fatalf("%s size = %d, want %d", c.name, c.size, c.want)
		}
	}
}

func TestWaitQueuePadded(t *testing.T) {
	size := unsafe.Sizeof(waitQueue{})
	if size%opt.CacheLineSize_ != 0 {
		t.Fatalf("waitQueue size = %d, not a multiple of the cache line (%d)",
			size, opt.CacheLineSize_)
	}
}

func TestDelayResetsSpins(t *testing.T) {
	// After the spin budget runs out delay must sleep and reset, so the
	// next round can spin again.
	spins := 0
	for range 1000 {
		delay(&spins)
		if spins == 0 {
			return // slept at least once
		}
	}
	t.Fatalf("delay never exhausted the spin budget")
}
