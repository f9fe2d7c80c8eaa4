package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lavallee/cub-sub002/internal/task"
)

var closeCmd = &cobra.Command{
	Use:   "close ID",
	Short: "Close a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		note, _ := cmd.Flags().GetString("note")
		if note == "" {
			note = "closed manually"
		}
		if err := taskStore().SetStatus(args[0], task.StatusClosed, note); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Closed %s\n", args[0])
	},
}

var reopenCmd = &cobra.Command{
	Use:   "reopen ID",
	Short: "Reopen a task so the loop can pick it up again",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		note, _ := cmd.Flags().GetString("note")
		if note == "" {
			note = "reopened"
		}
		if err := taskStore().SetStatus(args[0], task.StatusOpen, note); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Reopened %s\n", args[0])
	},
}

var noteCmd = &cobra.Command{
	Use:   "note ID TEXT",
	Short: "Append a note to a task",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := taskStore().AppendNote(args[0], args[1]); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Noted %s\n", args[0])
	},
}

func init() {
	closeCmd.Flags().String("note", "", "Note recorded with the close")
	reopenCmd.Flags().String("note", "", "Note recorded with the reopen")
	rootCmd.AddCommand(closeCmd, reopenCmd, noteCmd)
}
