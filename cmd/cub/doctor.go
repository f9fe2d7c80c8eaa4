package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lavallee/cub-sub002/internal/graph"
	"github.com/lavallee/cub-sub002/internal/ledger"
	"github.com/lavallee/cub-sub002/internal/policy"
)

const (
	checkOK      = "ok"
	checkWarning = "warning"
	checkError   = "error"
)

type healthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the project is ready to run",
	Long: `Doctor verifies the pieces a run depends on: the configuration,
the git and harness executables, the task store and its dependency
graph, the ledger database, and the lessons file. Exits 1 if anything
is broken.`,
	Run: func(cmd *cobra.Command, args []string) {
		checks := runHealthChecks(cmd.Context())

		overall := true
		for _, c := range checks {
			if c.Status == checkError {
				overall = false
			}
		}

		if jsonOutput {
			outputJSON(map[string]any{"checks": checks, "ok": overall})
		} else {
			green := color.New(color.FgGreen).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()
			for _, c := range checks {
				marker := green("✓")
				switch c.Status {
				case checkWarning:
					marker = yellow("!")
				case checkError:
					marker = red("✗")
				}
				fmt.Printf("%s %-8s %s\n", marker, c.Name, c.Message)
			}
		}
		if !overall {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// runHealthChecks runs every check concurrently; each writes its own
// slot, so the report order is stable.
func runHealthChecks(ctx context.Context) []healthCheck {
	checks := make([]healthCheck, 6)
	var g errgroup.Group

	g.Go(func() error {
		checks[0] = checkConfig()
		return nil
	})
	g.Go(func() error {
		checks[1] = checkBinary("git", "git", checkWarning, "clean-worktree gate disabled")
		return nil
	})
	g.Go(func() error {
		checks[2] = checkBinary("harness", cfg.Harness.Command, checkError, "runs cannot start")
		return nil
	})
	g.Go(func() error {
		checks[3] = checkTaskStore()
		return nil
	})
	g.Go(func() error {
		checks[4] = checkLedger(ctx)
		return nil
	})
	g.Go(func() error {
		checks[5] = checkLessons()
		return nil
	})
	g.Wait()
	return checks
}

func checkConfig() healthCheck {
	if err := cfg.Validate(); err != nil {
		return healthCheck{Name: "config", Status: checkError, Message: err.Error()}
	}
	return healthCheck{
		Name:    "config",
		Status:  checkOK,
		Message: fmt.Sprintf("harness %s, on-failure %s", cfg.Harness.Type, cfg.Failure.Mode),
	}
}

func checkBinary(name, command, missingStatus, consequence string) healthCheck {
	if command == "" {
		return healthCheck{Name: name, Status: checkError, Message: "no command configured"}
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return healthCheck{
			Name:    name,
			Status:  missingStatus,
			Message: fmt.Sprintf("%s not found on PATH (%s)", command, consequence),
		}
	}
	return healthCheck{Name: name, Status: checkOK, Message: path}
}

func checkTaskStore() healthCheck {
	st := taskStore()
	if !st.Exists() {
		return healthCheck{
			Name:    "store",
			Status:  checkWarning,
			Message: fmt.Sprintf("%s missing (run 'cub init')", cfg.Store),
		}
	}
	tasks, err := st.List()
	if err != nil {
		return healthCheck{Name: "store", Status: checkError, Message: err.Error()}
	}
	result := graph.Validate(tasks)
	if !result.Valid() {
		return healthCheck{Name: "store", Status: checkError, Message: result.Err().Error()}
	}
	if len(result.Warnings) > 0 {
		return healthCheck{
			Name:    "store",
			Status:  checkWarning,
			Message: fmt.Sprintf("%d tasks, %d graph warnings", len(tasks), len(result.Warnings)),
		}
	}
	return healthCheck{Name: "store", Status: checkOK, Message: fmt.Sprintf("%d tasks, graph valid", len(tasks))}
}

func checkLedger(ctx context.Context) healthCheck {
	path := cfg.LedgerPath()
	if _, err := os.Stat(path); err != nil {
		return healthCheck{Name: "ledger", Status: checkOK, Message: "not created yet"}
	}
	led, err := ledger.Open(ctx, path)
	if err != nil {
		return healthCheck{Name: "ledger", Status: checkError, Message: err.Error()}
	}
	led.Close()
	return healthCheck{Name: "ledger", Status: checkOK, Message: path}
}

func checkLessons() healthCheck {
	if !cfg.Lessons.Enabled {
		return healthCheck{Name: "lessons", Status: checkOK, Message: "disabled"}
	}
	lessons, err := policy.NewRecorder(cfg.Lessons.Path).List()
	if err != nil {
		return healthCheck{Name: "lessons", Status: checkError, Message: err.Error()}
	}
	return healthCheck{Name: "lessons", Status: checkOK, Message: fmt.Sprintf("%d recorded", len(lessons))}
}
