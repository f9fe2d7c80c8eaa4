package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lavallee/cub-sub002/internal/policy"
)

var lessonsVerbose bool

var lessonsCmd = &cobra.Command{
	Use:   "lessons",
	Short: "Show lessons recorded when tasks exhausted their retries",
	Run: func(cmd *cobra.Command, args []string) {
		lessons, err := policy.NewRecorder(cfg.Lessons.Path).List()
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			outputJSON(lessons)
			return
		}
		if len(lessons) == 0 {
			fmt.Println("No lessons recorded.")
			return
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()
		for _, l := range lessons {
			fmt.Printf("%s %s: %s (exit %d) %s\n",
				yellow("!"), l.TaskID, l.Title, l.ExitCode, faint(l.Timestamp))
			if lessonsVerbose && l.Output != "" {
				for _, line := range strings.Split(strings.TrimRight(l.Output, "\n"), "\n") {
					fmt.Printf("    %s\n", line)
				}
			}
		}
	},
}

func init() {
	lessonsCmd.Flags().BoolVarP(&lessonsVerbose, "output", "o", false, "Include the captured harness output")
	rootCmd.AddCommand(lessonsCmd)
}
