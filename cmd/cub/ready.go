package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lavallee/cub-sub002/internal/ready"
)

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "Show tasks the loop would pick next (open, dependencies closed)",
	Run: func(cmd *cobra.Command, args []string) {
		tasks, err := taskStore().List()
		if err != nil {
			fatalf("%v", err)
		}

		readyTasks := ready.Ready(tasks)
		if jsonOutput {
			outputJSON(readyTasks)
			return
		}
		if len(readyTasks) == 0 {
			fmt.Println("No ready tasks")
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s %d ready:\n", cyan(">"), len(readyTasks))
		for i, t := range readyTasks {
			title := t.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%d. [%s] %s: %s\n", i+1, t.Priority, t.ID, title)
		}
	},
}

var blockedCmd = &cobra.Command{
	Use:   "blocked",
	Short: "Show open tasks held back by unmet dependencies",
	Run: func(cmd *cobra.Command, args []string) {
		tasks, err := taskStore().List()
		if err != nil {
			fatalf("%v", err)
		}

		blocked := ready.Blocked(tasks)
		if jsonOutput {
			outputJSON(blocked)
			return
		}
		if len(blocked) == 0 {
			fmt.Println("No blocked tasks")
			return
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("%s %d blocked:\n", yellow("!"), len(blocked))
		for _, b := range blocked {
			title := b.Task.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("[%s] %s: %s\n", b.Task.Priority, b.Task.ID, title)
			fmt.Printf("    waiting on %s\n", strings.Join(b.BlockedBy, ", "))
		}
	},
}

func init() {
	rootCmd.AddCommand(readyCmd, blockedCmd)
}
