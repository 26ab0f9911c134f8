//go:build race

package opt

import (
	"runtime"
	"unsafe"
)

const Race_ = true

// RaceAcquire establishes a happens-before edge from every prior
// RaceRelease/RaceReleaseMerge on addr. Lock acquisitions and the final
// refcount drop report their guard edges through these.
//
//go:nosplit
func RaceAcquire(addr unsafe.Pointer) {
	runtime.RaceAcquire(addr)
}

// RaceRelease publishes the caller's prior writes on addr.
//
//go:nosplit
func RaceRelease(addr unsafe.Pointer) {
	runtime.RaceRelease(addr)
}

// RaceReleaseMerge is RaceRelease that also keeps every earlier release on
// addr visible. Used where several goroutines release concurrently and the
// next acquirer must see all of them (reader unlocks, refcount decrements).
//
//go:nosplit
func RaceReleaseMerge(addr unsafe.Pointer) {
	runtime.RaceReleaseMerge(addr)
}
