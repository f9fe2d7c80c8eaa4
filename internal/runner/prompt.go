package runner

import (
	"fmt"
	"strings"

	"github.com/lavallee/cub-sub002/internal/task"
)

// BuildPrompt renders the instruction block sent to the harness for one
// task attempt. Failure context from an earlier attempt, when present, is
// appended so the next attempt does not repeat the same approach.
func BuildPrompt(t task.Task, failureContext string) string {
	var b strings.Builder

	b.WriteString("Work on the following task.\n\n")

	title := t.Title
	if title == "" {
		title = t.ID
	}
	fmt.Fprintf(&b, "Task: %s\n", title)
	fmt.Fprintf(&b, "ID: %s\n", t.ID)

	if t.Description != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(t.Description, "\n"))
		b.WriteString("\n")
	}

	if len(t.AcceptanceCriteria) > 0 {
		b.WriteString("\nAcceptance criteria:\n")
		for _, c := range t.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}

	if failureContext != "" {
		b.WriteString("\n")
		b.WriteString(failureContext)
		b.WriteString("\n")
	}

	return b.String()
}
