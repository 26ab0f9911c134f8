package opt

import (
	"sync"
	"testing"
	"time"
)

func TestSemaBlocksUntilRelease(t *testing.T) {
	var s Sema
	done := make(chan struct{})
	go func() {
		s.Acquire()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Acquire returned before Release")
	case <-time.After(50 * time.Millisecond):
	}

	s.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after Release")
	}
}

func TestSemaReleaseBeforeAcquire(t *testing.T) {
	// The runtime semaphore keeps a count: a release with no waiter must
	// let the next acquire pass without blocking.
	var s Sema
	s.Release()

	done := make(chan struct{})
	go func() {
		s.Acquire()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Acquire blocked despite a pending Release")
	}
}

func TestSemaManyWaiters(t *testing.T) {
	var s Sema
	const n = 10

	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			s.Acquire()
		}()
	}

	time.Sleep(50 * time.Millisecond)
	for range n {
		s.Release()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all waiters woke up")
	}
}
