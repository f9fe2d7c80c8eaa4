package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lavallee/cub-sub002/internal/artifacts"
)

var failuresClear bool

var failuresCmd = &cobra.Command{
	Use:   "failures [task-id]",
	Short: "Show stored failure records",
	Long: `Failures lists the persisted failure record for each task that has
one. With a task id it prints that task's record in full, including the
captured harness output.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		arts := artifacts.NewStore(cfg.ArtifactsDir())

		if failuresClear {
			if len(args) == 1 {
				if err := arts.Clear(args[0]); err != nil {
					fatalf("%v", err)
				}
				fmt.Printf("Cleared failure record for %s\n", args[0])
			} else {
				if err := arts.ClearAll(); err != nil {
					fatalf("%v", err)
				}
				fmt.Println("Cleared all failure records")
			}
			return
		}

		if len(args) == 1 {
			rec, ok, err := arts.Latest(args[0])
			if err != nil {
				fatalf("%v", err)
			}
			if !ok {
				fatalf("no failure record for %s", args[0])
			}
			if jsonOutput {
				outputJSON(rec)
				return
			}
			printFailure(rec, true)
			return
		}

		records, err := arts.List()
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			outputJSON(records)
			return
		}
		if len(records) == 0 {
			fmt.Println("No failure records.")
			return
		}
		for _, rec := range records {
			printFailure(rec, false)
		}
	},
}

func init() {
	failuresCmd.Flags().BoolVar(&failuresClear, "clear", false, "Remove the record(s) instead of printing them")
	rootCmd.AddCommand(failuresCmd)
}

func printFailure(rec artifacts.Record, full bool) {
	red := color.New(color.FgRed).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	fmt.Printf("%s %s exit %d (%s) %s\n",
		red("x"), rec.TaskID, rec.ExitCode, rec.Mode, faint(rec.Timestamp))
	if full && rec.Output != "" {
		for _, line := range strings.Split(strings.TrimRight(rec.Output, "\n"), "\n") {
			fmt.Printf("  %s\n", line)
		}
	}
}
