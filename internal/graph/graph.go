package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gammazero/toposort"

	"github.com/lavallee/cub-sub002/internal/task"
)

// MissingDependencyError reports a dependsOn reference to an id that does
// not exist in the task set.
type MissingDependencyError struct {
	TaskID    string
	MissingID string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on non-existent task %q", e.TaskID, e.MissingID)
}

// CycleError reports a dependency cycle. Path holds the ids in
// depends-on order; a self-dependency yields a single-element path.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "dependency cycle detected"
	}
	// Close the loop for display: t1 -> t2 -> t1.
	closed := append(append([]string(nil), e.Path...), e.Path[0])
	return fmt.Sprintf("dependency cycle: %s", strings.Join(closed, " -> "))
}

// ValidationResult collects everything Validate found. Errors make the
// task set untrustworthy for readiness computation; warnings never do.
type ValidationResult struct {
	Errors   []error
	Warnings []string
}

// Valid reports whether the task set can be trusted by the selector.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Cycle returns the ordered path of the first detected cycle, or nil.
func (r ValidationResult) Cycle() []string {
	for _, err := range r.Errors {
		var ce *CycleError
		if errors.As(err, &ce) {
			return ce.Path
		}
	}
	return nil
}

// Err flattens the errors into one value for callers that only need a
// yes/no answer with context.
func (r ValidationResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, err := range r.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Errorf("invalid dependency graph: %s", strings.Join(msgs, "; "))
}

// Validate checks the dependency graph over a task snapshot: every
// referenced id must exist and the edge set must be acyclic. A task whose
// dependency is declared later in the document is flagged as a warning
// only; document order carries no semantic weight, but forward references
// usually point at authoring mistakes. An empty snapshot is valid.
func Validate(tasks []task.Task) ValidationResult {
	var result ValidationResult
	if len(tasks) == 0 {
		return result
	}

	byID := task.Index(tasks)
	pos := make(map[string]int, len(tasks))
	for i, t := range tasks {
		pos[t.ID] = i
	}

	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				result.Errors = append(result.Errors, &MissingDependencyError{TaskID: t.ID, MissingID: dep})
				continue
			}
			if pos[dep] > pos[t.ID] {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("task %q depends on %q, which is declared later in the document", t.ID, dep))
			}
		}
	}

	// Cycle check over the resolvable edges. Edges to missing ids were
	// reported above and cannot close a cycle.
	var edges []toposort.Edge
	for _, t := range tasks {
		known := 0
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; ok {
				// Edge (dep, id) means dep must come before id.
				edges = append(edges, toposort.Edge{dep, t.ID})
				known++
			}
		}
		if known == 0 {
			// Dependency-free task: edge from nil keeps it in the sort.
			edges = append(edges, toposort.Edge{nil, t.ID})
		}
	}
	if _, err := toposort.Toposort(edges); err != nil {
		result.Errors = append(result.Errors, &CycleError{Path: findCycle(tasks, byID)})
	}

	return result
}

// TopologicalOrder returns the task ids so that every dependency precedes
// its dependents. Tasks with no ordering constraint between them keep
// their original input order, which makes the output reproducible for a
// given document. A cycle yields a nil slice and a CycleError.
func TopologicalOrder(tasks []task.Task) ([]string, error) {
	if len(tasks) == 0 {
		return []string{}, nil
	}

	byID := task.Index(tasks)
	pos := make(map[string]int, len(tasks))
	for i, t := range tasks {
		pos[t.ID] = i
	}

	indegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				// Unknown references are Validate's concern, not an
				// ordering constraint.
				continue
			}
			indegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	// Kahn's algorithm, always taking the earliest-declared ready task so
	// ties resolve by input order.
	var ready []string
	for _, t := range tasks {
		if indegree[t.ID] == 0 {
			ready = append(ready, t.ID)
		}
	}

	order := make([]string, 0, len(tasks))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, dependent := range dependents[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Slice(ready, func(i, j int) bool { return pos[ready[i]] < pos[ready[j]] })
	}

	if len(order) != len(tasks) {
		return nil, &CycleError{Path: findCycle(tasks, byID)}
	}
	return order, nil
}

// IsSatisfied reports whether every dependency of t resolves to a closed
// task. An unknown id counts as unsatisfied: a task is never ready while
// its dependency state cannot be determined.
func IsSatisfied(t task.Task, byID map[string]task.Task) bool {
	for _, dep := range t.DependsOn {
		d, ok := byID[dep]
		if !ok || d.Status != task.StatusClosed {
			return false
		}
	}
	return true
}

// findCycle walks the dependency edges depth-first and returns the first
// cycle reached from the input order as an ordered id path.
func findCycle(tasks []task.Task, byID map[string]task.Task) []string {
	const (
		white = iota // unvisited
		gray         // on the current path
		black        // fully explored
	)
	color := make(map[string]int, len(tasks))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)

		for _, dep := range byID[id].DependsOn {
			if _, ok := byID[dep]; !ok {
				continue
			}
			switch color[dep] {
			case gray:
				// The cycle is the stack segment from dep onward.
				for i, sid := range stack {
					if sid == dep {
						cycle = append([]string(nil), stack[i:]...)
						return true
					}
				}
			case white:
				if visit(dep) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, t := range tasks {
		if color[t.ID] == white && visit(t.ID) {
			return cycle
		}
	}
	return nil
}
