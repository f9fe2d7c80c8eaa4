package artifacts

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func TestWriteAndLatest(t *testing.T) {
	s := newTestStore(t)

	rec := Record{TaskID: "t1", ExitCode: 2, Output: "boom", Mode: "retry", Timestamp: "2026-08-23T10:00:00Z"}
	if err := s.Write(rec); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, ok, err := s.Latest("t1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if !ok {
		t.Fatal("Latest found nothing after Write")
	}
	if got.ExitCode != 2 || got.Output != "boom" || got.Mode != "retry" {
		t.Errorf("Latest = %+v, want the written record", got)
	}
}

func TestWriteSupersedesPrevious(t *testing.T) {
	s := newTestStore(t)

	if err := s.Write(Record{TaskID: "t1", ExitCode: 1, Mode: "retry", Timestamp: "2026-08-23T10:00:00Z"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(Record{TaskID: "t1", ExitCode: 7, Mode: "move-on", Timestamp: "2026-08-23T10:05:00Z"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, ok, err := s.Latest("t1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if !ok || got.ExitCode != 7 || got.Mode != "move-on" {
		t.Errorf("Latest = %+v, want the superseding record", got)
	}
}

func TestLatestMissingIsNotAnError(t *testing.T) {
	s := newTestStore(t)

	rec, ok, err := s.Latest("never-failed")
	if err != nil {
		t.Fatalf("Latest on missing record: %v", err)
	}
	if ok {
		t.Errorf("Latest reported a record that was never written: %+v", rec)
	}
}

func TestWriteMissingRootDegradesGracefully(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "does-not-exist"))

	if err := s.Write(Record{TaskID: "t1", ExitCode: 1, Mode: "stop"}); err != nil {
		t.Fatalf("Write into missing root must not error, got: %v", err)
	}
	if _, err := os.Stat(s.Root()); !os.IsNotExist(err) {
		t.Error("Write created the missing root instead of degrading")
	}
}

func TestSeparatorIdsStayDistinct(t *testing.T) {
	s := newTestStore(t)

	// "a/b" and "a:b" sanitize to the same base name; the hash suffix
	// must keep the records apart.
	if err := s.Write(Record{TaskID: "a/b", ExitCode: 1, Mode: "retry"}); err != nil {
		t.Fatalf("Write a/b: %v", err)
	}
	if err := s.Write(Record{TaskID: "a:b", ExitCode: 2, Mode: "stop"}); err != nil {
		t.Fatalf("Write a:b: %v", err)
	}

	slash, ok, err := s.Latest("a/b")
	if err != nil || !ok {
		t.Fatalf("Latest a/b: ok=%v err=%v", ok, err)
	}
	colon, ok, err := s.Latest("a:b")
	if err != nil || !ok {
		t.Fatalf("Latest a:b: ok=%v err=%v", ok, err)
	}
	if slash.ExitCode != 1 || colon.ExitCode != 2 {
		t.Errorf("records collided: a/b=%+v a:b=%+v", slash, colon)
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t)

	if err := s.Write(Record{TaskID: "t1", ExitCode: 1, Mode: "retry"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Clear("t1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, err := s.Latest("t1"); err != nil || ok {
		t.Errorf("record survived Clear: ok=%v err=%v", ok, err)
	}

	// Clearing a task that has no record is fine.
	if err := s.Clear("t2"); err != nil {
		t.Errorf("Clear on missing record: %v", err)
	}
}

func TestListAndClearAll(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"zeta", "alpha", "mid/dle"} {
		if err := s.Write(Record{TaskID: id, ExitCode: 1, Mode: "move-on"}); err != nil {
			t.Fatalf("Write %s: %v", id, err)
		}
	}

	records, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("List returned %d records, want 3", len(records))
	}
	// Sorted by task id.
	if records[0].TaskID != "alpha" || records[1].TaskID != "mid/dle" || records[2].TaskID != "zeta" {
		t.Errorf("List order = [%s %s %s]", records[0].TaskID, records[1].TaskID, records[2].TaskID)
	}

	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	records, err = s.List()
	if err != nil {
		t.Fatalf("List after ClearAll: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("%d records survived ClearAll", len(records))
	}
}

func TestListMissingRoot(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing"))
	records, err := s.List()
	if err != nil {
		t.Fatalf("List on missing root: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty list, got %d", len(records))
	}
}
