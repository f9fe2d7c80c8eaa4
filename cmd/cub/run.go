package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lavallee/cub-sub002/internal/artifacts"
	"github.com/lavallee/cub-sub002/internal/budget"
	"github.com/lavallee/cub-sub002/internal/events"
	"github.com/lavallee/cub-sub002/internal/gitx"
	"github.com/lavallee/cub-sub002/internal/graph"
	"github.com/lavallee/cub-sub002/internal/harness"
	"github.com/lavallee/cub-sub002/internal/ledger"
	"github.com/lavallee/cub-sub002/internal/policy"
	"github.com/lavallee/cub-sub002/internal/ready"
	"github.com/lavallee/cub-sub002/internal/runner"
	"github.com/lavallee/cub-sub002/internal/task"
	"github.com/lavallee/cub-sub002/internal/tui"
)

var (
	runBudgetLimit  int
	runMaxTaskIters int
	runMaxRunIters  int
	runOnFailure    string
	runHarnessType  string
	runHarnessCmd   string
	runModel        string
	runTimeout      int
	runAllowDirty   bool
	runOnce         bool
	runDryRun       bool
	runUseTUI       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent loop until tasks or budgets run out",
	Long: `Run selects ready tasks one at a time, hands each to the configured
harness, and records the result. The loop stops when no ready tasks
remain, the token budget or iteration ceiling is reached, the failure
policy halts, or the run is interrupted.

Exit codes: 0 for an orderly finish, 2 when the failure policy halted
the run.`,
	Run: func(cmd *cobra.Command, args []string) {
		applyRunFlags(cmd)

		if runDryRun {
			if err := dryRun(); err != nil {
				fatalf("%v", err)
			}
			return
		}

		code, err := executeRun(cmd.Context())
		if err != nil {
			fatalf("%v", err)
		}
		if code != 0 {
			os.Exit(code)
		}
	},
}

func init() {
	runCmd.Flags().IntVar(&runBudgetLimit, "budget", 0, "Token budget for this run (0 = unlimited)")
	runCmd.Flags().IntVar(&runMaxTaskIters, "max-task-iterations", 0, "Retry ceiling per task")
	runCmd.Flags().IntVar(&runMaxRunIters, "max-run-iterations", 0, "Loop pass ceiling per run")
	runCmd.Flags().StringVar(&runOnFailure, "on-failure", "", "Failure mode: stop, move-on, retry, or triage")
	runCmd.Flags().StringVar(&runHarnessType, "harness", "", "Harness type: claude, codex, or script")
	runCmd.Flags().StringVar(&runHarnessCmd, "harness-command", "", "Harness executable")
	runCmd.Flags().StringVar(&runModel, "model", "", "Model passed to the harness")
	runCmd.Flags().IntVar(&runTimeout, "timeout", 0, "Per-attempt timeout in seconds")
	runCmd.Flags().BoolVar(&runAllowDirty, "allow-dirty", false, "Start even with uncommitted changes")
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Attempt a single task, then stop")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Print the execution order without invoking the harness")
	runCmd.Flags().BoolVar(&runUseTUI, "tui", false, "Show the interactive dashboard while running")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags layers explicitly-set flags over the loaded config.
func applyRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("budget") {
		cfg.Budget.TokenLimit = runBudgetLimit
	}
	if flags.Changed("max-task-iterations") {
		cfg.Budget.MaxTaskIterations = runMaxTaskIters
	}
	if flags.Changed("max-run-iterations") {
		cfg.Budget.MaxRunIterations = runMaxRunIters
	}
	if flags.Changed("on-failure") {
		cfg.Failure.Mode = runOnFailure
	}
	if flags.Changed("harness") {
		cfg.Harness.Type = runHarnessType
	}
	if flags.Changed("harness-command") {
		cfg.Harness.Command = runHarnessCmd
	}
	if flags.Changed("model") {
		cfg.Harness.Model = runModel
	}
	if flags.Changed("timeout") {
		cfg.Harness.TimeoutSeconds = runTimeout
	}
}

func executeRun(ctx context.Context) (int, error) {
	st := taskStore()
	if !st.Exists() {
		return 0, fmt.Errorf("no task store at %s (run 'cub init' first)", cfg.Store)
	}

	mode, err := policy.ParseMode(cfg.Failure.Mode)
	if err != nil {
		return 0, err
	}

	for _, dir := range []string{cfg.ArtifactsDir(), cfg.StateDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}

	tracker := budget.NewTracker(cfg.StateDir(), budget.Config{
		MaxTaskIterations: cfg.Budget.MaxTaskIterations,
		MaxRunIterations:  cfg.Budget.MaxRunIterations,
	})
	if cfg.Budget.TokenLimit > 0 {
		if err := tracker.Init(cfg.Budget.TokenLimit); err != nil {
			return 0, err
		}
	}

	led, err := ledger.Open(ctx, cfg.LedgerPath())
	if err != nil {
		return 0, fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()

	pm := harness.NewProcessManager()
	defer pm.KillAll()

	h, err := harness.New(harness.Config{
		Type:    cfg.Harness.Type,
		Command: cfg.Harness.Command,
		Model:   cfg.Harness.Model,
		Args:    cfg.Harness.Args,
	}, pm)
	if err != nil {
		return 0, err
	}

	var git *gitx.Client
	if c := gitx.NewClient("."); c.IsRepo() {
		git = c
	}

	var lessons *policy.Recorder
	if cfg.Lessons.Enabled {
		lessons = policy.NewRecorder(cfg.Lessons.Path)
	}

	bus := events.NewBus()
	defer bus.Close()

	// The TUI modal and the terminal prompt both answer triage through
	// the same channel; a non-interactive run leaves it unset and the
	// policy continues past failures on its own.
	triageCtx, cancelTriage := context.WithCancel(ctx)
	var tc *runner.TriageChannel
	defer func() {
		cancelTriage()
		if tc != nil {
			tc.Stop()
		}
	}()

	var prog *tea.Program
	if runUseTUI {
		prog = tea.NewProgram(tui.New(bus), tea.WithAltScreen())
	}

	popts := policy.Options{Lessons: lessons}
	if mode == policy.ModeTriage {
		var answer runner.AnswerFunc
		switch {
		case prog != nil:
			answer = tui.Answerer(prog)
		case term.IsTerminal(int(os.Stdin.Fd())):
			answer = promptAnswerer()
		}
		if answer != nil {
			tc = runner.NewTriageChannel(4, answer)
			tc.Start(triageCtx)
			popts.Triage = tc.Func(triageCtx)
		}
	}

	arts := artifacts.NewStore(cfg.ArtifactsDir())
	machine := policy.NewMachine(tracker, arts, popts)

	loop, err := runner.New(runner.Options{
		Store:          st,
		Harness:        h,
		Tracker:        tracker,
		Policy:         machine,
		Artifacts:      arts,
		Ledger:         led,
		Bus:            bus,
		Git:            git,
		Mode:           mode,
		WarnPercent:    cfg.Budget.WarnThresholdPercent,
		AttemptTimeout: time.Duration(cfg.Harness.TimeoutSeconds) * time.Second,
		RequireClean:   cfg.Git.RequireClean && !runAllowDirty,
		Once:           runOnce,
	})
	if err != nil {
		return 0, err
	}

	var summary runner.Summary
	if prog != nil {
		summary, err = runWithTUI(ctx, loop, prog, bus)
	} else {
		summary, err = runHeadless(ctx, loop, bus)
	}
	if err != nil {
		return 0, err
	}

	if jsonOutput {
		outputJSON(map[string]any{
			"runId":      summary.RunID,
			"outcome":    summary.Outcome.String(),
			"iterations": summary.Iterations,
			"completed":  summary.Completed,
			"failed":     summary.Failed,
			"tokensUsed": summary.TokensUsed,
			"duration":   summary.Duration.String(),
		})
	} else {
		printRunSummary(summary)
	}

	if summary.Outcome == runner.OutcomeHalted {
		return 2, nil
	}
	return 0, nil
}

// runHeadless runs the loop while a printer goroutine narrates events to
// stdout.
func runHeadless(ctx context.Context, loop *runner.Loop, bus *events.Bus) (runner.Summary, error) {
	evCh := bus.SubscribeAll(256)
	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		printEvents(evCh)
	}()

	summary, err := loop.Run(ctx)
	bus.Close()
	<-printerDone
	return summary, err
}

// runWithTUI runs the loop alongside the dashboard. The dashboard stays
// up after the run finishes so the final state is readable; quitting it
// mid-run cancels the loop.
func runWithTUI(ctx context.Context, loop *runner.Loop, prog *tea.Program, bus *events.Bus) (runner.Summary, error) {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	uiDone := make(chan error, 1)
	go func() {
		_, err := prog.Run()
		uiDone <- err
	}()

	var (
		summary runner.Summary
		runErr  error
	)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		summary, runErr = loop.Run(runCtx)
	}()

	var uiErr error
	select {
	case uiErr = <-uiDone:
		cancelRun()
		<-loopDone
	case <-loopDone:
		if runErr != nil {
			prog.Quit()
		}
		uiErr = <-uiDone
	}
	bus.Close()

	if runErr != nil {
		return summary, runErr
	}
	return summary, uiErr
}

func printEvents(ch <-chan events.Event) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	for ev := range ch {
		switch e := ev.(type) {
		case events.RunStartedEvent:
			fmt.Printf("run %s started (%s via %s)\n", e.RunID, e.Mode, e.Harness)
		case events.RunFinishedEvent:
			fmt.Printf("run finished: %s (%d closed, %d failed) in %s\n",
				e.Outcome, e.Completed, e.Failed, e.Duration.Round(time.Second))
		case events.TaskStartedEvent:
			fmt.Printf("> %s: %s (attempt %d)\n", e.ID, e.Title, e.Attempt)
		case events.TaskOutputEvent:
			if verboseFlag {
				fmt.Printf("%s %s\n", faint("|"), e.Line)
			}
		case events.TaskCompletedEvent:
			fmt.Printf("%s %s closed in %s (%d tokens)\n",
				green("+"), e.ID, e.Duration.Round(time.Second), e.Tokens)
		case events.TaskFailedEvent:
			fmt.Printf("%s %s exit %d (%s)\n", red("x"), e.ID, e.ExitCode, e.Signal)
		case events.GraphProgressEvent:
			fmt.Printf("%s\n", faint(fmt.Sprintf("[%d/%d closed, %d ready, %d blocked]",
				e.Closed, e.Total, e.Ready, e.Blocked)))
		case events.BudgetWarningEvent:
			fmt.Printf("%s budget at %d%%: %d/%d tokens\n",
				yellow("!"), e.Percent, e.Used, e.Limit)
		case events.TriageRequestedEvent:
			fmt.Printf("%s %s escalated to triage\n", yellow("?"), e.ID)
		}
	}
}

func printRunSummary(s runner.Summary) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("\n%s %s\n", bold("Run"), s.RunID)
	fmt.Printf("  Outcome:    %s\n", s.Outcome)
	fmt.Printf("  Iterations: %d\n", s.Iterations)
	fmt.Printf("  Completed:  %d\n", s.Completed)
	fmt.Printf("  Failed:     %d\n", s.Failed)
	fmt.Printf("  Tokens:     %d\n", s.TokensUsed)
	fmt.Printf("  Duration:   %s\n", s.Duration.Round(time.Second))
}

// promptAnswerer answers triage with an inline terminal form.
func promptAnswerer() runner.AnswerFunc {
	return func(ctx context.Context, taskID string, rec artifacts.Record) (policy.Signal, error) {
		var choice string
		form := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Task %s failed with exit code %d", taskID, rec.ExitCode)).
				Description(tailLines(rec.Output, 10)).
				Options(
					huh.NewOption("Continue to the next task", "continue"),
					huh.NewOption("Retry this task", "retry"),
					huh.NewOption("Halt the run", "halt"),
				).
				Value(&choice),
		))
		if err := form.RunWithContext(ctx); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return policy.SignalContinue, nil
			}
			return policy.SignalContinue, err
		}
		switch choice {
		case "halt":
			return policy.SignalHalt, nil
		case "retry":
			return policy.SignalRetryCurrent, nil
		default:
			return policy.SignalContinue, nil
		}
	}
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// dryRun prints the order tasks would execute in by simulating selection
// against an in-memory copy of the store.
func dryRun() error {
	tasks, err := taskStore().List()
	if err != nil {
		return err
	}
	if result := graph.Validate(tasks); !result.Valid() {
		return result.Err()
	}

	fmt.Println("Dry run: tasks would execute in this order:")
	step := 0
	for {
		rdy := ready.Ready(tasks)
		if len(rdy) == 0 {
			break
		}
		next := rdy[0]
		step++
		fmt.Printf("%d. [%s] %s: %s\n", step, next.Priority, next.ID, next.Title)
		for i := range tasks {
			if tasks[i].ID == next.ID {
				tasks[i].Status = task.StatusClosed
			}
		}
	}
	if step == 0 {
		fmt.Println("  (no ready tasks)")
	}

	var stuck []string
	for _, t := range tasks {
		if t.Status != task.StatusClosed {
			stuck = append(stuck, fmt.Sprintf("%s (%s)", t.ID, t.Status))
		}
	}
	if len(stuck) > 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("%s would not run: %s\n", yellow("!"), strings.Join(stuck, ", "))
	}
	return nil
}
