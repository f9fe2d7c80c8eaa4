package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lavallee/cub-sub002/internal/config"
	"github.com/lavallee/cub-sub002/internal/store"
	"github.com/lavallee/cub-sub002/internal/task"
)

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Configure the project and seed tasks interactively",
	Long: `Interview walks through harness, budget, and failure-policy choices
with a terminal form, writes the project config, and then offers to seed
the store with initial tasks.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runInterview(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Fprintln(os.Stderr, "Interview cancelled.")
				os.Exit(0)
			}
			fatalf("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(interviewCmd)
}

func runInterview() error {
	var (
		harnessType  = cfg.Harness.Type
		harnessCmd   = cfg.Harness.Command
		model        = cfg.Harness.Model
		budgetStr    string
		failureMode  = cfg.Failure.Mode
		requireClean = cfg.Git.RequireClean
	)
	if cfg.Budget.TokenLimit > 0 {
		budgetStr = strconv.Itoa(cfg.Budget.TokenLimit)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Harness").
				Description("Which agent works the tasks?").
				Options(
					huh.NewOption("Claude Code", "claude"),
					huh.NewOption("Codex CLI", "codex"),
					huh.NewOption("Custom script", "script"),
				).
				Value(&harnessType),

			huh.NewInput().
				Title("Command").
				Description("Executable to invoke").
				Value(&harnessCmd).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("command is required")
					}
					return nil
				}),

			huh.NewInput().
				Title("Model").
				Description("Model override (optional)").
				Value(&model),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("Token budget").
				Description("Total tokens per run, empty for unlimited").
				Value(&budgetStr).
				Validate(func(s string) error {
					s = strings.TrimSpace(s)
					if s == "" {
						return nil
					}
					if n, err := strconv.Atoi(s); err != nil || n < 0 {
						return fmt.Errorf("must be a non-negative number")
					}
					return nil
				}),

			huh.NewSelect[string]().
				Title("On failure").
				Description("What should the loop do when a task fails?").
				Options(
					huh.NewOption("Retry with failure context", "retry"),
					huh.NewOption("Move on to the next task", "move-on"),
					huh.NewOption("Stop the run", "stop"),
					huh.NewOption("Ask me (triage)", "triage"),
				).
				Value(&failureMode),

			huh.NewConfirm().
				Title("Require a clean worktree before runs?").
				Value(&requireClean),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg.Harness.Type = harnessType
	cfg.Harness.Command = strings.TrimSpace(harnessCmd)
	cfg.Harness.Model = strings.TrimSpace(model)
	cfg.Failure.Mode = failureMode
	cfg.Git.RequireClean = requireClean
	if s := strings.TrimSpace(budgetStr); s != "" {
		cfg.Budget.TokenLimit, _ = strconv.Atoi(s)
	} else {
		cfg.Budget.TokenLimit = 0
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	st := taskStore()
	if !st.Exists() {
		if err := st.Import(&store.Document{}); err != nil {
			return err
		}
	}
	for _, dir := range []string{cfg.ArtifactsDir(), cfg.StateDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	cfgPath := filepath.Join(cfg.WorkDir(), "config.yaml")
	if err := config.Save(cfg, cfgPath); err != nil {
		return err
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s wrote %s\n", green("+"), cfgPath)

	for {
		addMore := false
		confirm := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title("Add a task?").
				Value(&addMore),
		))
		if err := confirm.Run(); err != nil {
			return err
		}
		if !addMore {
			break
		}
		if err := interviewTask(st); err != nil {
			return err
		}
	}
	return nil
}

func interviewTask(st *store.FileStore) error {
	var (
		title       string
		description string
		priorityStr = "2"
	)
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Title").
			Value(&title).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("title is required")
				}
				return nil
			}),

		huh.NewText().
			Title("Description").
			CharLimit(5000).
			Value(&description),

		huh.NewSelect[string]().
			Title("Priority").
			Options(
				huh.NewOption("P0 - Critical", "0"),
				huh.NewOption("P1 - High", "1"),
				huh.NewOption("P2 - Medium", "2"),
				huh.NewOption("P3 - Low", "3"),
			).
			Value(&priorityStr),
	))
	if err := form.Run(); err != nil {
		return err
	}

	priority, err := task.ParsePriority(priorityStr)
	if err != nil {
		return err
	}
	t := task.Task{
		ID:          newTaskID(),
		Title:       strings.TrimSpace(title),
		Description: description,
		Status:      task.StatusOpen,
		Priority:    priority,
	}
	if err := st.Create(t); err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s created %s\n", green("+"), t.ID)
	return nil
}
