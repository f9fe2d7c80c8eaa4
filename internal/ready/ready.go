package ready

import (
	"sort"

	"github.com/lavallee/cub-sub002/internal/graph"
	"github.com/lavallee/cub-sub002/internal/task"
)

// Ready returns the open tasks whose dependencies are all closed, ordered
// by priority ascending (P0 first). Tasks of equal priority keep their
// document order, so repeated calls over an unchanged snapshot always
// yield the same list and the run loop's next pick is reproducible. An
// empty result is the normal "all done or all blocked" signal, not an
// error.
func Ready(tasks []task.Task) []task.Task {
	byID := task.Index(tasks)

	out := []task.Task{}
	for _, t := range tasks {
		if t.Status != task.StatusOpen {
			continue
		}
		if !graph.IsSatisfied(t, byID) {
			continue
		}
		out = append(out, t.Clone())
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// BlockedTask pairs an open task with the dependency ids still holding it
// back. BlockedBy lists unsatisfied ids in declaration order, including
// references to tasks that do not exist.
type BlockedTask struct {
	Task      task.Task `json:"task"`
	BlockedBy []string  `json:"blockedBy"`
}

// Blocked returns the open tasks whose dependencies are not yet
// satisfied. Diagnostics only; selection never consults it.
func Blocked(tasks []task.Task) []BlockedTask {
	byID := task.Index(tasks)

	out := []BlockedTask{}
	for _, t := range tasks {
		if t.Status != task.StatusOpen {
			continue
		}
		blockers := blockedBy(t, byID)
		if len(blockers) == 0 {
			continue
		}
		out = append(out, BlockedTask{Task: t.Clone(), BlockedBy: blockers})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Task.Priority < out[j].Task.Priority
	})
	return out
}

func blockedBy(t task.Task, byID map[string]task.Task) []string {
	var blockers []string
	for _, dep := range t.DependsOn {
		d, ok := byID[dep]
		if !ok || d.Status != task.StatusClosed {
			blockers = append(blockers, dep)
		}
	}
	return blockers
}
