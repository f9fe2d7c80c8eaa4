package budget

import (
	"errors"
	"testing"
)

func TestCheckBoundaryInclusive(t *testing.T) {
	tr := NewTracker(t.TempDir(), Config{})
	if err := tr.Init(1000); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := tr.Record(400); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := tr.Record(600); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Exactly at the limit is still within budget.
	ok, err := tr.Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !ok {
		t.Errorf("Check at used==limit = false, want true")
	}

	// One past the limit fails.
	if err := tr.Record(1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	ok, err = tr.Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ok {
		t.Errorf("Check at used==limit+1 = true, want false")
	}
}

func TestZeroLimitFailsEveryCheck(t *testing.T) {
	tr := NewTracker(t.TempDir(), Config{})
	if err := tr.Init(0); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ok, err := tr.Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ok {
		t.Error("Check with limit 0 = true, want false (no budget allowed)")
	}
}

func TestFailLoudBeforeInit(t *testing.T) {
	tr := NewTracker(t.TempDir(), Config{})

	if _, err := tr.Check(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Check before Init error = %v, want ErrNotInitialized", err)
	}
	if err := tr.Record(10); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Record before Init error = %v, want ErrNotInitialized", err)
	}
	if _, err := tr.CheckWarning(80); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("CheckWarning before Init error = %v, want ErrNotInitialized", err)
	}

	// Getters stay usable without Init.
	if got := tr.TaskIterations("unseen"); got != 0 {
		t.Errorf("TaskIterations for unseen id = %d, want 0", got)
	}
	if got := tr.Used(); got != 0 {
		t.Errorf("Used before Init = %d, want 0", got)
	}
}

func TestRecordRejectsNegative(t *testing.T) {
	tr := NewTracker(t.TempDir(), Config{})
	if err := tr.Init(100); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := tr.Record(-5); !errors.Is(err, ErrNegativeTokens) {
		t.Fatalf("Record(-5) error = %v, want ErrNegativeTokens", err)
	}
	if got := tr.Used(); got != 0 {
		t.Errorf("Used after rejected record = %d, want 0", got)
	}
	if err := tr.Record(0); err != nil {
		t.Errorf("Record(0) = %v, want nil", err)
	}
}

func TestCheckWarningFiresOnce(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(dir, Config{})
	if err := tr.Init(100); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := tr.Record(50); err != nil {
		t.Fatalf("Record: %v", err)
	}
	warn, err := tr.CheckWarning(80)
	if err != nil {
		t.Fatalf("CheckWarning: %v", err)
	}
	if warn {
		t.Error("warning fired below the threshold")
	}

	if err := tr.Record(35); err != nil {
		t.Fatalf("Record: %v", err)
	}
	warn, err = tr.CheckWarning(80)
	if err != nil {
		t.Fatalf("CheckWarning: %v", err)
	}
	if !warn {
		t.Fatal("warning did not fire after crossing the threshold")
	}

	// Polling again must not warn a second time.
	for i := 0; i < 3; i++ {
		warn, err = tr.CheckWarning(80)
		if err != nil {
			t.Fatalf("CheckWarning: %v", err)
		}
		if warn {
			t.Fatal("warning fired more than once")
		}
	}

	// The marker is disk-backed per process: a second tracker over the
	// same state dir also stays quiet.
	other := NewTracker(dir, Config{})
	if err := other.Init(100); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := other.Record(90); err != nil {
		t.Fatalf("Record: %v", err)
	}
	warn, err = other.CheckWarning(80)
	if err != nil {
		t.Fatalf("CheckWarning: %v", err)
	}
	if warn {
		t.Error("second tracker re-fired the per-process warning")
	}
}

func TestTaskIterationBoundary(t *testing.T) {
	tr := NewTracker(t.TempDir(), Config{MaxTaskIterations: 3})

	for i := 1; i <= 3; i++ {
		if got := tr.IncrementTaskIterations("t1"); got != i {
			t.Fatalf("increment %d returned %d", i, got)
		}
		if !tr.CheckTaskIterations("t1") {
			t.Fatalf("CheckTaskIterations false at count %d (max 3)", i)
		}
	}

	tr.IncrementTaskIterations("t1")
	if tr.CheckTaskIterations("t1") {
		t.Error("CheckTaskIterations true at count 4 (max 3)")
	}

	// Other tasks are unaffected.
	if !tr.CheckTaskIterations("t2") {
		t.Error("unseen task failed its iteration check")
	}
}

func TestRunIterationBoundary(t *testing.T) {
	tr := NewTracker(t.TempDir(), Config{MaxRunIterations: 2})

	tr.IncrementRunIterations()
	tr.IncrementRunIterations()
	if !tr.CheckRunIterations() {
		t.Error("CheckRunIterations false at count 2 (max 2)")
	}
	tr.IncrementRunIterations()
	if tr.CheckRunIterations() {
		t.Error("CheckRunIterations true at count 3 (max 2)")
	}
}

func TestOpaqueTaskIds(t *testing.T) {
	tr := NewTracker(t.TempDir(), Config{})
	ids := []string{"a/b", "a:b", "a b", "../c", "t-1"}
	for _, id := range ids {
		tr.IncrementTaskIterations(id)
	}
	for _, id := range ids {
		if got := tr.TaskIterations(id); got != 1 {
			t.Errorf("TaskIterations(%q) = %d, want 1", id, got)
		}
	}
}

func TestClear(t *testing.T) {
	tr := NewTracker(t.TempDir(), Config{MaxTaskIterations: 5, MaxRunIterations: 9})
	if err := tr.Init(100); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := tr.Record(60); err != nil {
		t.Fatalf("Record: %v", err)
	}
	tr.IncrementTaskIterations("t1")
	tr.IncrementRunIterations()

	tr.Clear()

	if got := tr.TaskIterations("t1"); got != 0 {
		t.Errorf("task iterations after Clear = %d, want 0", got)
	}
	if got := tr.RunIterations(); got != 0 {
		t.Errorf("run iterations after Clear = %d, want 0", got)
	}
	if got := tr.MaxTaskIterations(); got != DefaultMaxTaskIterations {
		t.Errorf("max task iterations after Clear = %d, want default %d", got, DefaultMaxTaskIterations)
	}
	if got := tr.MaxRunIterations(); got != DefaultMaxRunIterations {
		t.Errorf("max run iterations after Clear = %d, want default %d", got, DefaultMaxRunIterations)
	}
	if _, err := tr.Check(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Check after Clear error = %v, want ErrNotInitialized", err)
	}
}
