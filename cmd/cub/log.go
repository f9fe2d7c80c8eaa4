package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lavallee/cub-sub002/internal/ledger"
)

var (
	logLimit int
	logTask  string
)

var logCmd = &cobra.Command{
	Use:   "log [run-id]",
	Short: "Show run history from the ledger",
	Long: `Log lists recent runs, newest first. With a run id it prints that
run's attempts in order; with --task it prints every attempt recorded
against one task across all runs.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		if _, err := os.Stat(cfg.LedgerPath()); err != nil {
			fatalf("no ledger at %s (no runs recorded yet)", cfg.LedgerPath())
		}
		led, err := ledger.Open(ctx, cfg.LedgerPath())
		if err != nil {
			fatalf("%v", err)
		}
		defer led.Close()

		switch {
		case logTask != "":
			showTaskAttempts(ctx, led, logTask)
		case len(args) == 1:
			showRun(ctx, led, args[0])
		default:
			listRuns(ctx, led)
		}
	},
}

func init() {
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 20, "Number of runs to list")
	logCmd.Flags().StringVar(&logTask, "task", "", "Show attempts for one task across all runs")
	rootCmd.AddCommand(logCmd)
}

func listRuns(ctx context.Context, led *ledger.Store) {
	runs, err := led.ListRuns(ctx, logLimit)
	if err != nil {
		fatalf("%v", err)
	}
	if jsonOutput {
		outputJSON(runs)
		return
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}
	for _, r := range runs {
		outcome := r.Outcome
		if outcome == "" {
			outcome = "running"
		}
		fmt.Printf("%s  %s  %-20s +%d -%d  %d tokens\n",
			shortRunID(r.ID),
			r.StartedAt.Format("2006-01-02 15:04"),
			outcome,
			r.Completed, r.Failed, r.Tokens)
	}
}

func showRun(ctx context.Context, led *ledger.Store, runID string) {
	run, err := led.GetRun(ctx, runID)
	if err != nil {
		fatalf("%v", err)
	}
	attempts, err := led.ListAttempts(ctx, runID)
	if err != nil {
		fatalf("%v", err)
	}

	if jsonOutput {
		outputJSON(map[string]any{"run": run, "attempts": attempts})
		return
	}

	bold := color.New(color.Bold).SprintFunc()
	outcome := run.Outcome
	if outcome == "" {
		outcome = "running"
	}
	fmt.Printf("%s %s\n", bold("Run"), run.ID)
	fmt.Printf("  Mode: %s | Harness: %s | Outcome: %s\n", run.Mode, run.Harness, outcome)
	fmt.Printf("  Started: %s", run.StartedAt.Format("2006-01-02 15:04:05"))
	if !run.FinishedAt.IsZero() {
		fmt.Printf(" | Duration: %s", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	}
	fmt.Println()
	fmt.Printf("  Closed %d, failed %d, %d tokens\n", run.Completed, run.Failed, run.Tokens)

	if len(attempts) == 0 {
		return
	}
	fmt.Println()
	for _, a := range attempts {
		printAttempt(a, false)
	}
}

func showTaskAttempts(ctx context.Context, led *ledger.Store, taskID string) {
	attempts, err := led.TaskAttempts(ctx, taskID)
	if err != nil {
		fatalf("%v", err)
	}
	if jsonOutput {
		outputJSON(attempts)
		return
	}
	if len(attempts) == 0 {
		fmt.Printf("No attempts recorded for %s.\n", taskID)
		return
	}
	fmt.Printf("Attempts for %s:\n", taskID)
	for _, a := range attempts {
		printAttempt(a, true)
	}
}

func printAttempt(a ledger.Attempt, withRun bool) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	marker := green("+")
	detail := ""
	if a.ExitCode != 0 {
		marker = red("x")
		detail = fmt.Sprintf(" exit %d -> %s", a.ExitCode, a.Signal)
	}
	runRef := ""
	if withRun {
		runRef = fmt.Sprintf(" [run %s]", shortRunID(a.RunID))
	}
	fmt.Printf("  %s %s #%d%s (%d tokens, %s)%s\n",
		marker, a.TaskID, a.Attempt, detail, a.Tokens, a.Duration.Round(time.Second), runRef)
}
