package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lavallee/cub-sub002/internal/task"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in the store",
	Run: func(cmd *cobra.Command, args []string) {
		statusRaw, _ := cmd.Flags().GetString("status")

		tasks, err := taskStore().List()
		if err != nil {
			fatalf("%v", err)
		}

		if statusRaw != "" {
			want, perr := task.ParseStatus(statusRaw)
			if perr != nil {
				fatalf("%v", perr)
			}
			filtered := tasks[:0]
			for _, t := range tasks {
				if t.Status == want {
					filtered = append(filtered, t)
				}
			}
			tasks = filtered
		}

		if jsonOutput {
			outputJSON(tasks)
			return
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks")
			return
		}
		for _, t := range tasks {
			printTaskLine(t)
		}
	},
}

func init() {
	listCmd.Flags().String("status", "", "Filter by status (open, in_progress, closed)")
	rootCmd.AddCommand(listCmd)
}
