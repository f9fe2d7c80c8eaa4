package graph

import (
	"strings"
	"testing"

	"github.com/lavallee/cub-sub002/internal/task"
)

func mkTask(id string, deps ...string) task.Task {
	return task.Task{ID: id, Status: task.StatusOpen, Priority: task.P2, DependsOn: deps}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name         string
		tasks        []task.Task
		wantValid    bool
		wantWarnings int
		errContains  []string
	}{
		{
			name:      "empty set is valid",
			tasks:     nil,
			wantValid: true,
		},
		{
			name:      "no dependencies",
			tasks:     []task.Task{mkTask("a"), mkTask("b")},
			wantValid: true,
		},
		{
			name:      "linear chain",
			tasks:     []task.Task{mkTask("a"), mkTask("b", "a"), mkTask("c", "b")},
			wantValid: true,
		},
		{
			name:      "diamond",
			tasks:     []task.Task{mkTask("a"), mkTask("b", "a"), mkTask("c", "a"), mkTask("d", "b", "c")},
			wantValid: true,
		},
		{
			name:        "missing reference names both ids",
			tasks:       []task.Task{mkTask("a", "ghost")},
			wantValid:   false,
			errContains: []string{"a", "ghost"},
		},
		{
			name:        "two-task cycle names both participants",
			tasks:       []task.Task{mkTask("t1", "t2"), mkTask("t2", "t1")},
			wantValid:   false,
			errContains: []string{"t1", "t2"},
		},
		{
			name:        "self-dependency is a one-node cycle",
			tasks:       []task.Task{mkTask("solo", "solo")},
			wantValid:   false,
			errContains: []string{"cycle", "solo"},
		},
		{
			name:        "cycle behind a valid prefix",
			tasks:       []task.Task{mkTask("a"), mkTask("b", "a", "d"), mkTask("c", "b"), mkTask("d", "c")},
			wantValid:   false,
			errContains: []string{"cycle"},
		},
		{
			name:         "forward declaration warns but stays valid",
			tasks:        []task.Task{mkTask("a", "b"), mkTask("b")},
			wantValid:    true,
			wantWarnings: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.tasks)
			if result.Valid() != tt.wantValid {
				t.Fatalf("Valid() = %v, want %v (errors: %v)", result.Valid(), tt.wantValid, result.Errors)
			}
			if len(result.Warnings) != tt.wantWarnings {
				t.Errorf("warnings = %v, want %d of them", result.Warnings, tt.wantWarnings)
			}
			if len(tt.errContains) > 0 {
				joined := result.Err().Error()
				for _, want := range tt.errContains {
					if !strings.Contains(joined, want) {
						t.Errorf("error %q does not mention %q", joined, want)
					}
				}
			}
		})
	}
}

func TestValidateCyclePath(t *testing.T) {
	result := Validate([]task.Task{mkTask("t1", "t2"), mkTask("t2", "t1")})
	cycle := result.Cycle()
	if len(cycle) != 2 {
		t.Fatalf("cycle path = %v, want both participants", cycle)
	}
	found := map[string]bool{}
	for _, id := range cycle {
		found[id] = true
	}
	if !found["t1"] || !found["t2"] {
		t.Errorf("cycle path %v missing a participant", cycle)
	}
}

func TestTopologicalOrder(t *testing.T) {
	tests := []struct {
		name      string
		tasks     []task.Task
		wantOrder []string // exact order expected (deterministic by construction)
		wantErr   bool
	}{
		{
			name:      "empty",
			tasks:     nil,
			wantOrder: []string{},
		},
		{
			name:      "no constraints keeps input order",
			tasks:     []task.Task{mkTask("c"), mkTask("a"), mkTask("b")},
			wantOrder: []string{"c", "a", "b"},
		},
		{
			name:      "chain",
			tasks:     []task.Task{mkTask("c", "b"), mkTask("b", "a"), mkTask("a")},
			wantOrder: []string{"a", "b", "c"},
		},
		{
			name: "diamond ties resolve by input order",
			tasks: []task.Task{
				mkTask("root"),
				mkTask("right", "root"),
				mkTask("left", "root"),
				mkTask("join", "left", "right"),
			},
			wantOrder: []string{"root", "right", "left", "join"},
		},
		{
			name:    "cycle fails",
			tasks:   []task.Task{mkTask("a", "b"), mkTask("b", "a")},
			wantErr: true,
		},
		{
			name:    "self-dependency fails",
			tasks:   []task.Task{mkTask("a", "a")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := TopologicalOrder(tt.tasks)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got order %v", order)
				}
				if order != nil {
					t.Errorf("order = %v on error, want nil", order)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(order) != len(tt.wantOrder) {
				t.Fatalf("order = %v, want %v", order, tt.wantOrder)
			}
			for i := range order {
				if order[i] != tt.wantOrder[i] {
					t.Fatalf("order = %v, want %v", order, tt.wantOrder)
				}
			}
		})
	}
}

// Every dependency must precede its dependents regardless of declaration
// order; the exact-order tests above already pin the tie-break.
func TestTopologicalOrderRespectsEdges(t *testing.T) {
	tasks := []task.Task{
		mkTask("deploy", "test", "build"),
		mkTask("test", "build"),
		mkTask("build", "fetch"),
		mkTask("fetch"),
		mkTask("docs", "fetch"),
	}

	order, err := TopologicalOrder(tasks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != len(tasks) {
		t.Fatalf("order %v is not a permutation of %d tasks", order, len(tasks))
	}

	position := make(map[string]int, len(order))
	for i, id := range order {
		position[id] = i
	}
	for _, tk := range tasks {
		if _, ok := position[tk.ID]; !ok {
			t.Fatalf("task %q missing from order %v", tk.ID, order)
		}
		for _, dep := range tk.DependsOn {
			if position[dep] >= position[tk.ID] {
				t.Errorf("dependency %q does not precede %q in %v", dep, tk.ID, order)
			}
		}
	}
}

func TestIsSatisfied(t *testing.T) {
	closed := task.Task{ID: "done", Status: task.StatusClosed, Priority: task.P2}
	open := task.Task{ID: "pending", Status: task.StatusOpen, Priority: task.P2}
	inProgress := task.Task{ID: "active", Status: task.StatusInProgress, Priority: task.P2}
	byID := task.Index([]task.Task{closed, open, inProgress})

	tests := []struct {
		name string
		task task.Task
		want bool
	}{
		{name: "no dependencies", task: mkTask("t"), want: true},
		{name: "closed dependency", task: mkTask("t", "done"), want: true},
		{name: "open dependency", task: mkTask("t", "pending"), want: false},
		{name: "in-progress dependency", task: mkTask("t", "active"), want: false},
		{name: "unknown dependency is never satisfied", task: mkTask("t", "ghost"), want: false},
		{name: "one unsatisfied among satisfied", task: mkTask("t", "done", "pending"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSatisfied(tt.task, byID); got != tt.want {
				t.Errorf("IsSatisfied = %v, want %v", got, tt.want)
			}
		})
	}
}
