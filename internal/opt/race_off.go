//go:build !race

package opt

import (
	"unsafe"
)

const Race_ = false

// RaceAcquire is a no-op without the race detector.
//
//go:nosplit
func RaceAcquire(addr unsafe.Pointer) {
}

// RaceRelease is a no-op without the race detector.
//
//go:nosplit
func RaceRelease(addr unsafe.Pointer) {
}

// RaceReleaseMerge is a no-op without the race detector.
//
//go:nosplit
func RaceReleaseMerge(addr unsafe.Pointer) {
}
