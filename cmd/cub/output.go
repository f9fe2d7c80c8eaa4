package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/lavallee/cub-sub002/internal/task"
)

// outputJSON prints v as indented JSON on stdout.
func outputJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatalf("encoding JSON: %v", err)
	}
	fmt.Println(string(data))
}

// statusColor returns a sprint func matching the task status.
func statusColor(s task.Status) func(a ...interface{}) string {
	switch s {
	case task.StatusClosed:
		return color.New(color.FgGreen).SprintFunc()
	case task.StatusInProgress:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgCyan).SprintFunc()
	}
}

// printTaskLine prints the one-line list form of a task.
func printTaskLine(t task.Task) {
	c := statusColor(t.Status)
	title := t.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Printf("[%s] %s: %s %s\n", t.Priority, t.ID, title, c("("+t.Status.String()+")"))
}

// printTaskDetail prints the full record of a task.
func printTaskDetail(t task.Task) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("%s %s\n", bold(t.ID), statusColor(t.Status)("("+t.Status.String()+")"))
	if t.Title != "" {
		fmt.Printf("Title:    %s\n", t.Title)
	}
	fmt.Printf("Priority: %s\n", t.Priority)
	if len(t.DependsOn) > 0 {
		fmt.Printf("Depends:  %v\n", t.DependsOn)
	}
	if t.Description != "" {
		fmt.Printf("\n%s\n", t.Description)
	}
	if len(t.AcceptanceCriteria) > 0 {
		fmt.Println("\nAcceptance criteria:")
		for _, c := range t.AcceptanceCriteria {
			fmt.Printf("  - %s\n", c)
		}
	}
	if len(t.Notes) > 0 {
		fmt.Println("\nNotes:")
		for _, n := range t.Notes {
			fmt.Printf("  %s  %s\n", n.Time.Format("2006-01-02 15:04"), n.Text)
		}
	}
}

// confirmOverwrite reports whether path may be replaced; existing files
// need --force.
func confirmOverwrite(path string, force bool) bool {
	if _, err := os.Stat(path); err == nil && !force {
		return false
	}
	return true
}
