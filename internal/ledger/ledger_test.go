package ledger

import (
	"context"
	"strings"
	"testing"
	"time"
)

// testLedger creates an in-memory ledger for testing and registers cleanup.
func testLedger(t *testing.T) *Store {
	t.Helper()
	store, err := OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("failed to create test ledger: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func TestRecordAndGetRun(t *testing.T) {
	store := testLedger(t)
	ctx := context.Background()

	run := Run{ID: "run-1", Mode: "retry", Harness: "claude"}
	if err := store.RecordRun(ctx, run); err != nil {
		t.Fatalf("failed to record run: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}

	if got.ID != "run-1" {
		t.Errorf("ID mismatch: got %s, want run-1", got.ID)
	}
	if got.Mode != "retry" {
		t.Errorf("Mode mismatch: got %s, want retry", got.Mode)
	}
	if got.Harness != "claude" {
		t.Errorf("Harness mismatch: got %s, want claude", got.Harness)
	}
	if got.Outcome != "" {
		t.Errorf("live run should have empty outcome, got %q", got.Outcome)
	}
	if got.Completed != 0 || got.Failed != 0 || got.Tokens != 0 {
		t.Errorf("live run should have zero counters, got %d/%d/%d", got.Completed, got.Failed, got.Tokens)
	}
	if got.StartedAt.IsZero() {
		t.Error("StartedAt should be set on insert")
	}
	if !got.FinishedAt.IsZero() {
		t.Errorf("live run should have zero FinishedAt, got %v", got.FinishedAt)
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := testLedger(t)

	_, err := store.GetRun(context.Background(), "nonexistent")
	if err == nil {
		t.Fatal("expected error for missing run, got nil")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected 'not found' error, got: %v", err)
	}
}

func TestFinishRun(t *testing.T) {
	store := testLedger(t)
	ctx := context.Background()

	if err := store.RecordRun(ctx, Run{ID: "run-finish", Mode: "stop", Harness: "script"}); err != nil {
		t.Fatalf("failed to record run: %v", err)
	}

	if err := store.FinishRun(ctx, "run-finish", "done", 4, 1, 12500); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	got, err := store.GetRun(ctx, "run-finish")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}

	if got.Outcome != "done" {
		t.Errorf("Outcome mismatch: got %s, want done", got.Outcome)
	}
	if got.Completed != 4 {
		t.Errorf("Completed mismatch: got %d, want 4", got.Completed)
	}
	if got.Failed != 1 {
		t.Errorf("Failed mismatch: got %d, want 1", got.Failed)
	}
	if got.Tokens != 12500 {
		t.Errorf("Tokens mismatch: got %d, want 12500", got.Tokens)
	}
	if got.FinishedAt.IsZero() {
		t.Error("FinishedAt should be set after FinishRun")
	}
}

func TestFinishRunNotFound(t *testing.T) {
	store := testLedger(t)

	err := store.FinishRun(context.Background(), "nonexistent", "done", 0, 0, 0)
	if err == nil {
		t.Fatal("expected error when finishing non-existent run, got nil")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected 'not found' error, got: %v", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := testLedger(t)
	ctx := context.Background()

	if err := store.RecordRun(ctx, Run{ID: "list-run-a", Mode: "retry", Harness: "claude"}); err != nil {
		t.Fatalf("failed to record run a: %v", err)
	}
	if err := store.RecordRun(ctx, Run{ID: "list-run-b", Mode: "retry", Harness: "claude"}); err != nil {
		t.Fatalf("failed to record run b: %v", err)
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "list-run-b" || runs[1].ID != "list-run-a" {
		t.Errorf("expected newest first [list-run-b list-run-a], got [%s %s]", runs[0].ID, runs[1].ID)
	}

	limited, err := store.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("failed to list runs with limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 run with limit, got %d", len(limited))
	}
	if limited[0].ID != "list-run-b" {
		t.Errorf("limit should keep the newest run, got %s", limited[0].ID)
	}
}

func TestLatestRun(t *testing.T) {
	store := testLedger(t)
	ctx := context.Background()

	_, ok, err := store.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun on empty ledger: %v", err)
	}
	if ok {
		t.Error("empty ledger should report no latest run")
	}

	if err := store.RecordRun(ctx, Run{ID: "latest-run-1", Mode: "move-on", Harness: "codex"}); err != nil {
		t.Fatalf("failed to record run: %v", err)
	}
	if err := store.RecordRun(ctx, Run{ID: "latest-run-2", Mode: "move-on", Harness: "codex"}); err != nil {
		t.Fatalf("failed to record run: %v", err)
	}

	run, ok, err := store.LatestRun(ctx)
	if err != nil {
		t.Fatalf("failed to get latest run: %v", err)
	}
	if !ok {
		t.Fatal("expected a latest run after recording")
	}
	if run.ID != "latest-run-2" {
		t.Errorf("latest run mismatch: got %s, want latest-run-2", run.ID)
	}
}

func TestRecordAndListAttempts(t *testing.T) {
	store := testLedger(t)
	ctx := context.Background()

	if err := store.RecordRun(ctx, Run{ID: "att-run", Mode: "retry", Harness: "claude"}); err != nil {
		t.Fatalf("failed to record run: %v", err)
	}

	first := Attempt{
		RunID:    "att-run",
		TaskID:   "task-a",
		Attempt:  1,
		ExitCode: 1,
		Signal:   "retry-current",
		Output:   "compile error",
		Tokens:   300,
		Duration: 1500 * time.Millisecond,
	}
	second := Attempt{
		RunID:    "att-run",
		TaskID:   "task-a",
		Attempt:  2,
		ExitCode: 0,
		Tokens:   450,
		Duration: 2 * time.Second,
	}

	if err := store.RecordAttempt(ctx, first); err != nil {
		t.Fatalf("failed to record first attempt: %v", err)
	}
	if err := store.RecordAttempt(ctx, second); err != nil {
		t.Fatalf("failed to record second attempt: %v", err)
	}

	attempts, err := store.ListAttempts(ctx, "att-run")
	if err != nil {
		t.Fatalf("failed to list attempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}

	got := attempts[0]
	if got.TaskID != "task-a" || got.Attempt != 1 {
		t.Errorf("first attempt mismatch: got %s/%d", got.TaskID, got.Attempt)
	}
	if got.ExitCode != 1 {
		t.Errorf("ExitCode mismatch: got %d, want 1", got.ExitCode)
	}
	if got.Signal != "retry-current" {
		t.Errorf("Signal mismatch: got %s, want retry-current", got.Signal)
	}
	if got.Output != "compile error" {
		t.Errorf("Output mismatch: got %q", got.Output)
	}
	if got.Tokens != 300 {
		t.Errorf("Tokens mismatch: got %d, want 300", got.Tokens)
	}
	if got.Duration != 1500*time.Millisecond {
		t.Errorf("Duration mismatch: got %v, want 1.5s", got.Duration)
	}
	if got.ID == 0 {
		t.Error("attempt ID should be assigned by the database")
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set on insert")
	}

	if attempts[1].Attempt != 2 || attempts[1].ExitCode != 0 {
		t.Errorf("second attempt mismatch: got %d/%d", attempts[1].Attempt, attempts[1].ExitCode)
	}
	if attempts[1].Signal != "" {
		t.Errorf("successful attempt should have empty signal, got %q", attempts[1].Signal)
	}
}

func TestAttemptForeignKeyEnforced(t *testing.T) {
	store := testLedger(t)

	err := store.RecordAttempt(context.Background(), Attempt{
		RunID:   "nonexistent-run",
		TaskID:  "task-x",
		Attempt: 1,
	})
	if err == nil {
		t.Fatal("expected error when recording attempt for non-existent run, got nil")
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "foreign key") && !strings.Contains(errStr, "constraint") && !strings.Contains(errStr, "FOREIGN KEY") {
		t.Logf("Warning: error doesn't explicitly mention foreign key: %v", err)
	}
}

func TestTaskAttemptsAcrossRuns(t *testing.T) {
	store := testLedger(t)
	ctx := context.Background()

	if err := store.RecordRun(ctx, Run{ID: "cross-run-1", Mode: "retry", Harness: "claude"}); err != nil {
		t.Fatalf("failed to record run 1: %v", err)
	}
	if err := store.RecordRun(ctx, Run{ID: "cross-run-2", Mode: "retry", Harness: "claude"}); err != nil {
		t.Fatalf("failed to record run 2: %v", err)
	}

	for i, runID := range []string{"cross-run-1", "cross-run-1", "cross-run-2"} {
		att := Attempt{RunID: runID, TaskID: "cross-task", Attempt: i + 1, ExitCode: 1}
		if err := store.RecordAttempt(ctx, att); err != nil {
			t.Fatalf("failed to record attempt %d: %v", i+1, err)
		}
	}
	if err := store.RecordAttempt(ctx, Attempt{RunID: "cross-run-2", TaskID: "other-task", Attempt: 1}); err != nil {
		t.Fatalf("failed to record other-task attempt: %v", err)
	}

	attempts, err := store.TaskAttempts(ctx, "cross-task")
	if err != nil {
		t.Fatalf("failed to list task attempts: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts for cross-task, got %d", len(attempts))
	}
	for i, att := range attempts {
		if att.Attempt != i+1 {
			t.Errorf("attempt %d out of order: got ordinal %d", i, att.Attempt)
		}
	}
	if attempts[2].RunID != "cross-run-2" {
		t.Errorf("last attempt should belong to cross-run-2, got %s", attempts[2].RunID)
	}
}

func TestListAttemptsEmpty(t *testing.T) {
	store := testLedger(t)
	ctx := context.Background()

	if err := store.RecordRun(ctx, Run{ID: "empty-run", Mode: "stop", Harness: "script"}); err != nil {
		t.Fatalf("failed to record run: %v", err)
	}

	attempts, err := store.ListAttempts(ctx, "empty-run")
	if err != nil {
		t.Fatalf("failed to list attempts: %v", err)
	}
	if attempts == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(attempts) != 0 {
		t.Fatalf("expected 0 attempts, got %d", len(attempts))
	}
}

func TestSessionRoundTrip(t *testing.T) {
	store := testLedger(t)
	ctx := context.Background()

	_, ok, err := store.GetSession(ctx, "sess-task")
	if err != nil {
		t.Fatalf("GetSession on empty ledger: %v", err)
	}
	if ok {
		t.Error("expected no session before save")
	}

	if err := store.SaveSession(ctx, "sess-task", "session-abc", "claude"); err != nil {
		t.Fatalf("failed to save session: %v", err)
	}

	sess, ok, err := store.GetSession(ctx, "sess-task")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if !ok {
		t.Fatal("expected session after save")
	}
	if sess.SessionID != "session-abc" {
		t.Errorf("SessionID mismatch: got %s, want session-abc", sess.SessionID)
	}
	if sess.Harness != "claude" {
		t.Errorf("Harness mismatch: got %s, want claude", sess.Harness)
	}
	if sess.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set on save")
	}

	// Saving again replaces the resume key
	if err := store.SaveSession(ctx, "sess-task", "session-def", "codex"); err != nil {
		t.Fatalf("failed to update session: %v", err)
	}
	sess, ok, err = store.GetSession(ctx, "sess-task")
	if err != nil || !ok {
		t.Fatalf("failed to get updated session: ok=%v err=%v", ok, err)
	}
	if sess.SessionID != "session-def" || sess.Harness != "codex" {
		t.Errorf("session not replaced: got %s/%s", sess.SessionID, sess.Harness)
	}

	if err := store.ClearSession(ctx, "sess-task"); err != nil {
		t.Fatalf("failed to clear session: %v", err)
	}
	_, ok, err = store.GetSession(ctx, "sess-task")
	if err != nil {
		t.Fatalf("GetSession after clear: %v", err)
	}
	if ok {
		t.Error("expected no session after clear")
	}

	// Clearing an absent session is a no-op
	if err := store.ClearSession(ctx, "sess-task"); err != nil {
		t.Errorf("clearing absent session should not error: %v", err)
	}
}

func TestOpenCreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(ctx, dir+"/nested/deep/ledger.db")
	if err != nil {
		t.Fatalf("failed to open ledger in nested path: %v", err)
	}
	defer store.Close()

	if err := store.RecordRun(ctx, Run{ID: "file-run", Mode: "retry", Harness: "script"}); err != nil {
		t.Fatalf("failed to record run in file-backed ledger: %v", err)
	}
	if _, err := store.GetRun(ctx, "file-run"); err != nil {
		t.Fatalf("failed to read back run: %v", err)
	}
}
