package artifacts

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockManagerSameTaskBlocks(t *testing.T) {
	mgr := NewLockManager()
	orderChan := make(chan int, 2)

	go func() {
		mgr.Lock("t1")
		orderChan <- 1
		time.Sleep(50 * time.Millisecond)
		mgr.Unlock("t1")
	}()

	time.Sleep(10 * time.Millisecond)

	go func() {
		mgr.Lock("t1")
		orderChan <- 2
		mgr.Unlock("t1")
	}()

	first := <-orderChan
	second := <-orderChan
	if first != 1 || second != 2 {
		t.Errorf("expected order [1, 2], got [%d, %d]", first, second)
	}
}

func TestLockManagerDifferentTasksConcurrent(t *testing.T) {
	mgr := NewLockManager()
	var wg sync.WaitGroup
	var aLocked, bLocked atomic.Bool

	wg.Add(2)
	go func() {
		defer wg.Done()
		mgr.Lock("a")
		aLocked.Store(true)
		time.Sleep(20 * time.Millisecond)
		mgr.Unlock("a")
	}()
	go func() {
		defer wg.Done()
		mgr.Lock("b")
		bLocked.Store(true)
		time.Sleep(20 * time.Millisecond)
		mgr.Unlock("b")
	}()

	time.Sleep(10 * time.Millisecond)
	if !aLocked.Load() || !bLocked.Load() {
		t.Error("unrelated task locks blocked each other")
	}
	wg.Wait()
}

func TestLockManagerLockAllOrdering(t *testing.T) {
	mgr := NewLockManager()
	var wg sync.WaitGroup

	// Opposite acquisition orders deadlock unless LockAll sorts first.
	wg.Add(2)
	go func() {
		defer wg.Done()
		mgr.LockAll([]string{"b", "a"})
		time.Sleep(10 * time.Millisecond)
		mgr.UnlockAll([]string{"b", "a"})
	}()
	go func() {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)
		mgr.LockAll([]string{"a", "b"})
		time.Sleep(10 * time.Millisecond)
		mgr.UnlockAll([]string{"a", "b"})
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deadlock: LockAll ordering did not protect overlapping sets")
	}
}

func TestLockManagerEmptySet(t *testing.T) {
	mgr := NewLockManager()
	mgr.LockAll(nil)
	mgr.UnlockAll(nil)
}
