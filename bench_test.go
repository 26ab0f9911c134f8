package usync

import (
	"sync"
	"testing"
)

func BenchmarkMutexUncontended(b *testing.B) {
	m := NewMutex(0)
	b.ReportAllocs()
	for range b.N {
		g := m.Lock()
		*g.Value()++
		g.Unlock()
	}
}

func BenchmarkMutexParallel(b *testing.B) {
	m := NewMutex(0)
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			g := m.Lock()
			*g.Value()++
			g.Unlock()
		}
	})
}

func BenchmarkStdMutexParallel(b *testing.B) {
	var mu sync.Mutex
	var n int
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			mu.Lock()
			n++
			mu.Unlock()
		}
	})
	_ = n
}

func BenchmarkRwLockRead(b *testing.B) {
	rw := NewRwLock(0)
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			g := rw.Read()
			_ = *g.Value()
			g.Unlock()
		}
	})
}

func BenchmarkRwLockWrite(b *testing.B) {
	rw := NewRwLock(0)
	b.ReportAllocs()
	for range b.N {
		g := rw.Write()
		*g.Value()++
		g.Unlock()
	}
}

func BenchmarkArcCloneRelease(b *testing.B) {
	a := NewArc(0)
	defer a.Release()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c := a.Clone()
			c.Release()
		}
	})
}

func BenchmarkOnceCellGet(b *testing.B) {
	var c OnceCell[int]
	c.Set(1)
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			v, _ := c.Get()
			_ = v
		}
	})
}

func BenchmarkCondvarNotifyEmpty(b *testing.B) {
	var cv Condvar
	b.ReportAllocs()
	for range b.N {
		cv.NotifyOne()
	}
}

func BenchmarkFutexWakeEmpty(b *testing.B) {
	var f Futex
	b.ReportAllocs()
	for range b.N {
		f.WakeOne()
	}
}
