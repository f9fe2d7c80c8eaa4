package artifacts

import (
	"sort"
	"sync"
)

// LockManager provides per-task mutual exclusion for artifact access.
// The run loop writes failure records while status readers poll them, so
// each task id gets its own mutex and unrelated tasks never contend.
type LockManager struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // Per-task mutexes
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for the given task id, creating it on first
// access.
func (m *LockManager) Lock(taskID string) {
	m.mu.Lock()
	taskLock, exists := m.locks[taskID]
	if !exists {
		taskLock = &sync.Mutex{}
		m.locks[taskID] = taskLock
	}
	m.mu.Unlock()

	// Acquire outside the manager lock so unrelated tasks don't contend.
	taskLock.Lock()
}

// Unlock releases the mutex for the given task id.
func (m *LockManager) Unlock(taskID string) {
	m.mu.Lock()
	taskLock, exists := m.locks[taskID]
	m.mu.Unlock()

	if exists {
		taskLock.Unlock()
	}
}

// LockAll acquires the mutexes for all given task ids. Ids are sorted
// lexicographically before acquiring so overlapping multi-task operations
// cannot deadlock.
func (m *LockManager) LockAll(taskIDs []string) {
	if len(taskIDs) == 0 {
		return
	}

	sorted := make([]string, len(taskIDs))
	copy(sorted, taskIDs)
	sort.Strings(sorted)

	for _, id := range sorted {
		m.Lock(id)
	}
}

// UnlockAll releases the mutexes for all given task ids in reverse sorted
// order, mirroring LockAll.
func (m *LockManager) UnlockAll(taskIDs []string) {
	if len(taskIDs) == 0 {
		return
	}

	sorted := make([]string, len(taskIDs))
	copy(sorted, taskIDs)
	sort.Strings(sorted)

	for i := len(sorted) - 1; i >= 0; i-- {
		m.Unlock(sorted[i])
	}
}
