package runner

import (
	"strings"
	"testing"

	"github.com/lavallee/cub-sub002/internal/task"
)

func TestBuildPromptFullTask(t *testing.T) {
	tk := task.Task{
		ID:          "cub-42",
		Title:       "Wire the status command",
		Description: "Add a status subcommand that prints graph counts.\n",
		AcceptanceCriteria: []string{
			"prints open and closed counts",
			"exits 0 on a valid store",
		},
	}

	got := BuildPrompt(tk, "")
	want := "Work on the following task.\n\n" +
		"Task: Wire the status command\n" +
		"ID: cub-42\n" +
		"\nAdd a status subcommand that prints graph counts.\n" +
		"\nAcceptance criteria:\n" +
		"- prints open and closed counts\n" +
		"- exits 0 on a valid store\n"
	if got != want {
		t.Errorf("prompt mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestBuildPromptMinimalTask(t *testing.T) {
	got := BuildPrompt(task.Task{ID: "bare-1"}, "")
	want := "Work on the following task.\n\n" +
		"Task: bare-1\n" +
		"ID: bare-1\n"
	if got != want {
		t.Errorf("prompt mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestBuildPromptFailureContext(t *testing.T) {
	tk := task.Task{ID: "retry-9", Title: "Fix the flake"}
	failureCtx := "Previous attempt failed with exit code 1: assertion blew up. Please try a different approach."

	got := BuildPrompt(tk, failureCtx)
	if !strings.HasSuffix(got, "\n"+failureCtx+"\n") {
		t.Errorf("prompt should end with the failure context block, got:\n%s", got)
	}
	if !strings.Contains(got, "Task: Fix the flake\n") {
		t.Errorf("prompt should keep the task header, got:\n%s", got)
	}
}

func TestBuildPromptTrimsTrailingDescriptionNewlines(t *testing.T) {
	tk := task.Task{ID: "t-1", Description: "Body text.\n\n\n"}

	got := BuildPrompt(tk, "")
	if strings.Contains(got, "Body text.\n\n") {
		t.Errorf("trailing description newlines should collapse, got:\n%s", got)
	}
	if !strings.Contains(got, "\nBody text.\n") {
		t.Errorf("description should keep its single trailing newline, got:\n%s", got)
	}
}
