package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lavallee/cub-sub002/internal/config"
	"github.com/lavallee/cub-sub002/internal/store"
)

var (
	cfg         *config.Config
	storeFlag   string
	configFlag  string
	jsonOutput  bool
	noColor     bool
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "cub",
	Short: "Drive an autonomous coding agent over a task graph",
	Long: `cub selects ready tasks from a JSON task store, hands them to an AI
coding harness (claude, codex, or any scriptable command), records every
attempt in a run ledger, and repeats until the graph is done or a budget
says stop.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}

		level := slog.LevelInfo
		if verboseFlag {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		projectPath := configFlag
		if projectPath == "" {
			projectPath = config.FindProjectConfig()
		}
		loaded, err := config.Load(config.DefaultGlobalPath(), projectPath)
		if err != nil {
			return err
		}
		if err := config.ApplyEnv(loaded); err != nil {
			return err
		}
		if storeFlag != "" {
			loaded.Store = storeFlag
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeFlag, "store", "", "Task store path (default: .cub/tasks.json, or config)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Project config file (default: walk up for .cub/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
}

// taskStore returns the store the current invocation operates on.
func taskStore() *store.FileStore {
	return store.NewFileStore(cfg.Store)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", a...)
	os.Exit(1)
}
