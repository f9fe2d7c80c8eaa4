package config

import (
	"github.com/lavallee/cub-sub002/internal/budget"
)

// Default returns the built-in configuration: a Claude harness, bounded
// retries, and state under .cub/ next to the task store.
func Default() *Config {
	return &Config{
		Store: ".cub/tasks.json",
		Budget: BudgetConfig{
			TokenLimit:           0,
			WarnThresholdPercent: 90,
			MaxTaskIterations:    budget.DefaultMaxTaskIterations,
			MaxRunIterations:     budget.DefaultMaxRunIterations,
		},
		Failure: FailureConfig{
			Mode: "retry",
		},
		Harness: HarnessConfig{
			Type:           "claude",
			Command:        "claude",
			TimeoutSeconds: 1800,
		},
		Git: GitConfig{
			RequireClean: true,
		},
		Lessons: LessonsConfig{
			Path:    ".cub/lessons.jsonl",
			Enabled: true,
		},
	}
}
