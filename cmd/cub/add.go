package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lavallee/cub-sub002/internal/task"
)

var addCmd = &cobra.Command{
	Use:   "add TITLE",
	Short: "Add a task to the store",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, _ := cmd.Flags().GetString("id")
		priorityRaw, _ := cmd.Flags().GetString("priority")
		description, _ := cmd.Flags().GetString("description")
		deps, _ := cmd.Flags().GetStringSlice("depends")
		criteria, _ := cmd.Flags().GetStringSlice("criteria")

		if id == "" {
			id = newTaskID()
		}
		priority, err := task.ParsePriority(priorityRaw)
		if err != nil {
			fatalf("%v", err)
		}

		t := task.Task{
			ID:                 id,
			Title:              args[0],
			Description:        description,
			Status:             task.StatusOpen,
			Priority:           priority,
			DependsOn:          deps,
			AcceptanceCriteria: criteria,
		}
		if err := taskStore().Create(t); err != nil {
			fatalf("%v", err)
		}

		if jsonOutput {
			outputJSON(t)
			return
		}
		fmt.Printf("Created %s\n", id)
	},
}

// newTaskID derives a short id from the first segment of a UUID.
func newTaskID() string {
	return "t-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

func init() {
	addCmd.Flags().String("id", "", "Task id (default: generated)")
	addCmd.Flags().StringP("priority", "p", "P2", "Priority P0..P3")
	addCmd.Flags().StringP("description", "d", "", "Task description")
	addCmd.Flags().StringSlice("depends", nil, "Dependency task ids")
	addCmd.Flags().StringSlice("criteria", nil, "Acceptance criteria")
	rootCmd.AddCommand(addCmd)
}
