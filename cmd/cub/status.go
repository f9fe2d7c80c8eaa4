package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/lavallee/cub-sub002/internal/events"
	"github.com/lavallee/cub-sub002/internal/gitx"
	"github.com/lavallee/cub-sub002/internal/ledger"
	"github.com/lavallee/cub-sub002/internal/ready"
	"github.com/lavallee/cub-sub002/internal/task"
	"github.com/lavallee/cub-sub002/internal/tui"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show graph progress and the latest run",
	Run: func(cmd *cobra.Command, args []string) {
		if statusWatch {
			if err := watchStatus(cmd.Context()); err != nil {
				fatalf("%v", err)
			}
			return
		}
		if err := printStatus(cmd.Context()); err != nil {
			fatalf("%v", err)
		}
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "Open the dashboard and refresh it as the store changes")
	rootCmd.AddCommand(statusCmd)
}

func countStatuses(tasks []task.Task) (closed, inProgress, open int) {
	for _, t := range tasks {
		switch t.Status {
		case task.StatusClosed:
			closed++
		case task.StatusInProgress:
			inProgress++
		default:
			open++
		}
	}
	return closed, inProgress, open
}

func printStatus(ctx context.Context) error {
	tasks, err := taskStore().List()
	if err != nil {
		return err
	}

	closed, inProgress, open := countStatuses(tasks)
	readyCount := len(ready.Ready(tasks))
	blockedCount := len(ready.Blocked(tasks))

	// The ledger is only consulted when it already exists; status should
	// not create a database.
	var last *ledger.Run
	if _, err := os.Stat(cfg.LedgerPath()); err == nil {
		led, err := ledger.Open(ctx, cfg.LedgerPath())
		if err == nil {
			if run, ok, err := led.LatestRun(ctx); err == nil && ok {
				last = &run
			}
			led.Close()
		}
	}

	var branch, head string
	if git := gitx.NewClient("."); git.IsRepo() {
		branch, _ = git.CurrentBranch()
		if h, err := git.Head(); err == nil && len(h) >= 7 {
			head = h[:7]
		}
	}

	if jsonOutput {
		out := map[string]any{
			"store":      cfg.Store,
			"total":      len(tasks),
			"closed":     closed,
			"inProgress": inProgress,
			"open":       open,
			"ready":      readyCount,
			"blocked":    blockedCount,
		}
		if branch != "" {
			out["branch"] = branch
			out["head"] = head
		}
		if last != nil {
			out["lastRun"] = map[string]any{
				"id":        last.ID,
				"outcome":   last.Outcome,
				"completed": last.Completed,
				"failed":    last.Failed,
				"tokens":    last.Tokens,
				"startedAt": last.StartedAt,
			}
		}
		outputJSON(out)
		return nil
	}

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	fmt.Printf("Store: %s\n", cfg.Store)
	if branch != "" {
		fmt.Printf("Branch: %s @ %s\n", branch, head)
	}
	fmt.Printf("Tasks: %d total, %s closed, %s in progress, %s open\n",
		len(tasks),
		green(fmt.Sprintf("%d", closed)),
		yellow(fmt.Sprintf("%d", inProgress)),
		cyan(fmt.Sprintf("%d", open)))
	fmt.Printf("Ready: %d | Blocked: %d\n", readyCount, blockedCount)
	if bar := progressBar(closed, inProgress, open, 40); bar != "" {
		fmt.Printf("%s %d/%d closed\n", bar, closed, len(tasks))
	}

	if last != nil {
		outcome := last.Outcome
		if outcome == "" {
			outcome = "running"
		}
		fmt.Printf("Last run: %s %s (%d closed, %d failed, %d tokens) %s ago\n",
			shortRunID(last.ID), outcome, last.Completed, last.Failed, last.Tokens,
			time.Since(last.StartedAt).Round(time.Minute))
	}
	return nil
}

// watchStatus opens the dashboard and republishes a graph snapshot
// whenever the store file changes. Quitting the dashboard stops the
// watcher.
func watchStatus(ctx context.Context) error {
	if !taskStore().Exists() {
		return fmt.Errorf("no task store at %s (run 'cub init' first)", cfg.Store)
	}

	bus := events.NewBus()
	defer bus.Close()

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()

	prog := tea.NewProgram(tui.New(bus), tea.WithAltScreen())

	watchDone := make(chan error, 1)
	go func() {
		watchDone <- watchStore(watchCtx, bus)
	}()

	uiDone := make(chan error, 1)
	go func() {
		_, err := prog.Run()
		uiDone <- err
	}()

	select {
	case uiErr := <-uiDone:
		cancelWatch()
		<-watchDone
		return uiErr
	case watchErr := <-watchDone:
		prog.Quit()
		uiErr := <-uiDone
		if watchErr != nil {
			return watchErr
		}
		return uiErr
	}
}

// watchStore publishes a snapshot now and again after each change to
// the store file. Saves go through a temp file and a rename, so create
// and rename events count as changes too.
func watchStore(ctx context.Context, bus *events.Bus) error {
	dir := filepath.Dir(cfg.Store)
	base := filepath.Base(cfg.Store)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	publishGraph(bus)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	const debounceDelay = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, func() {
					publishGraph(bus)
				})
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Transient watcher errors are dropped; the next change
			// publishes a fresh snapshot anyway.
		}
	}
}

// publishGraph reads the store and publishes one progress snapshot. A
// read that races a save is skipped; the debounce retries soon after.
func publishGraph(bus *events.Bus) {
	tasks, err := taskStore().List()
	if err != nil {
		return
	}
	closed, inProgress, open := countStatuses(tasks)
	bus.Publish(events.TopicGraph, events.GraphProgressEvent{
		Total:      len(tasks),
		Closed:     closed,
		InProgress: inProgress,
		Open:       open,
		Ready:      len(ready.Ready(tasks)),
		Blocked:    len(ready.Blocked(tasks)),
		Timestamp:  time.Now(),
	})
}

func progressBar(closed, inProgress, open, width int) string {
	total := closed + inProgress + open
	if total == 0 || width <= 0 {
		return ""
	}
	c := closed * width / total
	p := inProgress * width / total
	o := width - c - p
	return "[" + strings.Repeat("=", c) + strings.Repeat("-", p) + strings.Repeat(".", o) + "]"
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
