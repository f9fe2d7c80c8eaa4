package ready

import (
	"testing"

	"github.com/lavallee/cub-sub002/internal/task"
)

func open(id string, p task.Priority, deps ...string) task.Task {
	return task.Task{ID: id, Status: task.StatusOpen, Priority: p, DependsOn: deps}
}

func closed(id string) task.Task {
	return task.Task{ID: id, Status: task.StatusClosed, Priority: task.P2}
}

func ids(tasks []task.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestReady(t *testing.T) {
	tests := []struct {
		name  string
		tasks []task.Task
		want  []string
	}{
		{
			name:  "empty set",
			tasks: nil,
			want:  []string{},
		},
		{
			name: "only open tasks qualify",
			tasks: []task.Task{
				open("a", task.P1),
				closed("b"),
				{ID: "c", Status: task.StatusInProgress, Priority: task.P0},
			},
			want: []string{"a"},
		},
		{
			name: "unsatisfied dependency excludes the task",
			tasks: []task.Task{
				open("t1", task.P1),
				open("t2", task.P0, "t1"),
			},
			want: []string{"t1"},
		},
		{
			name: "closed dependency releases the task",
			tasks: []task.Task{
				closed("t1"),
				open("t2", task.P0, "t1"),
			},
			want: []string{"t2"},
		},
		{
			name: "priority orders the result",
			tasks: []task.Task{
				open("low", task.P3),
				open("high", task.P0),
				open("mid", task.P2),
			},
			want: []string{"high", "mid", "low"},
		},
		{
			name: "equal priority keeps document order",
			tasks: []task.Task{
				open("first", task.P1),
				open("second", task.P1),
				open("third", task.P1),
			},
			want: []string{"first", "second", "third"},
		},
		{
			name: "priority sorts while ties stay stable",
			tasks: []task.Task{
				open("b1", task.P1),
				open("a0", task.P0),
				open("b2", task.P1),
				open("a1", task.P0),
			},
			want: []string{"a0", "a1", "b1", "b2"},
		},
		{
			name: "dependency on missing task blocks",
			tasks: []task.Task{
				open("t", task.P0, "ghost"),
			},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Ready(tt.tasks)
			if len(got) != len(tt.want) {
				t.Fatalf("Ready = %v, want %v", ids(got), tt.want)
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Fatalf("Ready = %v, want %v", ids(got), tt.want)
				}
				if got[i].Status != task.StatusOpen {
					t.Errorf("Ready returned non-open task %q (%v)", got[i].ID, got[i].Status)
				}
			}
		})
	}
}

func TestReadyIdempotent(t *testing.T) {
	tasks := []task.Task{
		closed("base"),
		open("b", task.P1, "base"),
		open("a", task.P1),
		open("z", task.P0),
	}

	first := Ready(tasks)
	second := Ready(tasks)
	if len(first) != len(second) {
		t.Fatalf("repeated calls differ: %v vs %v", ids(first), ids(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("repeated calls differ: %v vs %v", ids(first), ids(second))
		}
	}
}

func TestBlocked(t *testing.T) {
	tasks := []task.Task{
		closed("done"),
		open("free", task.P2),
		open("waiting", task.P1, "done", "free"),
		open("orphan", task.P0, "ghost"),
		{ID: "active", Status: task.StatusInProgress, Priority: task.P0, DependsOn: []string{"free"}},
	}

	got := Blocked(tasks)
	if len(got) != 2 {
		t.Fatalf("Blocked returned %d tasks, want 2", len(got))
	}

	// Priority order: orphan (P0) before waiting (P1).
	if got[0].Task.ID != "orphan" || got[1].Task.ID != "waiting" {
		t.Fatalf("Blocked order = [%s %s], want [orphan waiting]", got[0].Task.ID, got[1].Task.ID)
	}
	if len(got[0].BlockedBy) != 1 || got[0].BlockedBy[0] != "ghost" {
		t.Errorf("orphan blockedBy = %v, want [ghost]", got[0].BlockedBy)
	}
	if len(got[1].BlockedBy) != 1 || got[1].BlockedBy[0] != "free" {
		t.Errorf("waiting blockedBy = %v, want [free]", got[1].BlockedBy)
	}
}
