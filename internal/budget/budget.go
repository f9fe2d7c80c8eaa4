package budget

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// DefaultMaxTaskIterations bounds attempts per task before retry
	// falls back to move-on.
	DefaultMaxTaskIterations = 3
	// DefaultMaxRunIterations bounds loop iterations per run.
	DefaultMaxRunIterations = 50
)

var (
	// ErrNotInitialized is returned by token operations before Init.
	ErrNotInitialized = errors.New("budget tracker not initialized")
	// ErrNegativeTokens is returned when Record is given a negative amount.
	ErrNegativeTokens = errors.New("token amount must not be negative")
)

// Config carries the configured iteration ceilings for one run. Zero
// values fall back to the defaults.
type Config struct {
	MaxTaskIterations int
	MaxRunIterations  int
}

// Tracker holds all budget state for a single run: the token ceiling and
// accumulator plus per-task and per-run iteration counters. One Tracker is
// constructed per run and passed to whoever needs it; nothing here is
// package-global. Safe for concurrent use (the TUI reads while the loop
// records).
type Tracker struct {
	mu             sync.Mutex
	initialized    bool
	limit          int
	used           int
	maxTaskIter    int
	maxRunIter     int
	taskIterations map[string]int // keyed by opaque task id
	runIterations  int
	warned         bool
	stateDir       string // holds the pid-keyed warn marker; may be empty
}

// NewTracker creates a tracker with the given ceilings. stateDir, when
// non-empty, backs the warn-once flag with a marker file keyed by process
// id so polling callers cannot emit duplicate warnings.
func NewTracker(stateDir string, cfg Config) *Tracker {
	t := &Tracker{
		maxTaskIter:    cfg.MaxTaskIterations,
		maxRunIter:     cfg.MaxRunIterations,
		taskIterations: make(map[string]int),
		stateDir:       stateDir,
	}
	if t.maxTaskIter <= 0 {
		t.maxTaskIter = DefaultMaxTaskIterations
	}
	if t.maxRunIter <= 0 {
		t.maxRunIter = DefaultMaxRunIterations
	}
	return t
}

// Init sets the token ceiling and resets the accumulator. It must be
// called before Check, CheckWarning, or Record. A limit of 0 is legal and
// means no budget is allowed: every subsequent Check fails.
func (t *Tracker) Init(limit int) error {
	if limit < 0 {
		return fmt.Errorf("budget limit must not be negative, got %d", limit)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.limit = limit
	t.used = 0
	t.initialized = true
	t.warned = false
	t.removeMarker()
	return nil
}

// Record accumulates token usage. Zero is fine; negative is an input
// error and leaves the accumulator untouched.
func (t *Tracker) Record(tokens int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return ErrNotInitialized
	}
	if tokens < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeTokens, tokens)
	}
	t.used += tokens
	return nil
}

// Check reports whether usage is within budget. The boundary is
// inclusive: used == limit still passes, only exceeding fails. A zero
// limit fails immediately.
func (t *Tracker) Check() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return false, ErrNotInitialized
	}
	if t.limit == 0 {
		return false, nil
	}
	return t.used <= t.limit, nil
}

// CheckWarning reports true exactly once per process after usage crosses
// thresholdPercent of the limit. Later calls return false even when still
// over the threshold, so the caller can poll freely.
func (t *Tracker) CheckWarning(thresholdPercent int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return false, ErrNotInitialized
	}

	percent := 100
	if t.limit > 0 {
		percent = t.used * 100 / t.limit
	}
	if percent < thresholdPercent {
		return false, nil
	}
	if t.warned || t.markerExists() {
		return false, nil
	}

	t.warned = true
	t.writeMarker()
	return true, nil
}

// IncrementTaskIterations bumps the attempt counter for a task and
// returns the new count. Ids are opaque keys; slashes, colons, and spaces
// are all fine. Works without Init, since iteration ceilings are
// independent of the token budget.
func (t *Tracker) IncrementTaskIterations(taskID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.taskIterations[taskID]++
	return t.taskIterations[taskID]
}

// IncrementRunIterations bumps the loop counter and returns the new count.
func (t *Tracker) IncrementRunIterations() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.runIterations++
	return t.runIterations
}

// CheckTaskIterations reports whether the task is still within its
// attempt ceiling (inclusive, same convention as Check).
func (t *Tracker) CheckTaskIterations(taskID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.taskIterations[taskID] <= t.maxTaskIter
}

// CheckRunIterations reports whether the run is still within its
// iteration ceiling (inclusive).
func (t *Tracker) CheckRunIterations() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runIterations <= t.maxRunIter
}

// Clear resets every counter, restores the default ceilings, and drops
// per-task state. The tracker must be re-initialized before token checks.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.initialized = false
	t.limit = 0
	t.used = 0
	t.maxTaskIter = DefaultMaxTaskIterations
	t.maxRunIter = DefaultMaxRunIterations
	t.taskIterations = make(map[string]int)
	t.runIterations = 0
	t.warned = false
	t.removeMarker()
}

// Used returns the accumulated token count. Safe before Init.
func (t *Tracker) Used() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used
}

// Limit returns the configured token ceiling. Safe before Init.
func (t *Tracker) Limit() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limit
}

// TaskIterations returns the attempt count for a task, 0 for unseen ids.
func (t *Tracker) TaskIterations(taskID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.taskIterations[taskID]
}

// RunIterations returns the loop iteration count.
func (t *Tracker) RunIterations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runIterations
}

// MaxTaskIterations returns the per-task attempt ceiling.
func (t *Tracker) MaxTaskIterations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxTaskIter
}

// MaxRunIterations returns the per-run iteration ceiling.
func (t *Tracker) MaxRunIterations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxRunIter
}

// markerPath returns the warn-once flag location for this process, empty
// when no state dir was configured.
func (t *Tracker) markerPath() string {
	if t.stateDir == "" {
		return ""
	}
	return filepath.Join(t.stateDir, fmt.Sprintf("budget-warned-%d", os.Getpid()))
}

func (t *Tracker) markerExists() bool {
	path := t.markerPath()
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// writeMarker is best-effort: warning bookkeeping must never fail the
// run, and the in-memory flag already covers this tracker.
func (t *Tracker) writeMarker() {
	path := t.markerPath()
	if path == "" {
		return
	}
	if err := os.MkdirAll(t.stateDir, 0755); err != nil {
		return
	}
	_ = os.WriteFile(path, []byte{}, 0644)
}

func (t *Tracker) removeMarker() {
	path := t.markerPath()
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
