package config

import (
	"fmt"
	"path/filepath"
)

// BudgetConfig sets the token budget and iteration ceilings for a run.
// Zero iteration values mean "use the built-in defaults".
type BudgetConfig struct {
	TokenLimit           int `json:"token_limit" yaml:"token_limit"`
	WarnThresholdPercent int `json:"warn_threshold_percent" yaml:"warn_threshold_percent"`
	MaxTaskIterations    int `json:"max_task_iterations" yaml:"max_task_iterations"`
	MaxRunIterations     int `json:"max_run_iterations" yaml:"max_run_iterations"`
}

// FailureConfig selects the default failure mode for a run. The --on-failure
// flag overrides it per invocation.
type FailureConfig struct {
	Mode string `json:"mode" yaml:"mode"` // stop, move-on, retry, triage
}

// HarnessConfig describes the coding agent cub drives.
type HarnessConfig struct {
	Type           string   `json:"type" yaml:"type"` // claude, codex, script
	Command        string   `json:"command" yaml:"command"`
	Model          string   `json:"model,omitempty" yaml:"model,omitempty"`
	Args           []string `json:"args,omitempty" yaml:"args,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds" yaml:"timeout_seconds"` // 0 means no per-attempt timeout
}

// GitConfig gates runs on repository state.
type GitConfig struct {
	RequireClean bool `json:"require_clean" yaml:"require_clean"`
}

// LessonsConfig controls the append-only knowledge log.
type LessonsConfig struct {
	Path    string `json:"path" yaml:"path"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// Config is the top-level cub configuration.
type Config struct {
	Store   string        `json:"store" yaml:"store"`
	Budget  BudgetConfig  `json:"budget" yaml:"budget"`
	Failure FailureConfig `json:"failure" yaml:"failure"`
	Harness HarnessConfig `json:"harness" yaml:"harness"`
	Git     GitConfig     `json:"git" yaml:"git"`
	Lessons LessonsConfig `json:"lessons" yaml:"lessons"`
}

// WorkDir is the directory holding cub's project state, derived from the
// store path so one knob controls the whole layout.
func (c *Config) WorkDir() string {
	return filepath.Dir(c.Store)
}

// ArtifactsDir is where per-task failure records live.
func (c *Config) ArtifactsDir() string {
	return filepath.Join(c.WorkDir(), "failures")
}

// LedgerPath is the SQLite ledger location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.WorkDir(), "ledger.db")
}

// StateDir holds transient run state such as budget warning markers.
func (c *Config) StateDir() string {
	return filepath.Join(c.WorkDir(), "state")
}

// Validate checks the configuration for values no run could use.
func (c *Config) Validate() error {
	if c.Store == "" {
		return fmt.Errorf("store path must not be empty")
	}
	if c.Budget.TokenLimit < 0 {
		return fmt.Errorf("budget token_limit must not be negative, got %d", c.Budget.TokenLimit)
	}
	if c.Budget.WarnThresholdPercent < 1 || c.Budget.WarnThresholdPercent > 100 {
		return fmt.Errorf("budget warn_threshold_percent must be between 1 and 100, got %d", c.Budget.WarnThresholdPercent)
	}
	if c.Budget.MaxTaskIterations < 0 {
		return fmt.Errorf("budget max_task_iterations must not be negative, got %d", c.Budget.MaxTaskIterations)
	}
	if c.Budget.MaxRunIterations < 0 {
		return fmt.Errorf("budget max_run_iterations must not be negative, got %d", c.Budget.MaxRunIterations)
	}
	switch c.Failure.Mode {
	case "stop", "move-on", "retry", "triage":
	default:
		return fmt.Errorf("failure mode must be one of stop, move-on, retry, triage; got %q", c.Failure.Mode)
	}
	switch c.Harness.Type {
	case "claude", "codex", "script":
	default:
		return fmt.Errorf("harness type must be one of claude, codex, script; got %q", c.Harness.Type)
	}
	if c.Harness.Command == "" {
		return fmt.Errorf("harness command must not be empty")
	}
	if c.Harness.TimeoutSeconds < 0 {
		return fmt.Errorf("harness timeout_seconds must not be negative, got %d", c.Harness.TimeoutSeconds)
	}
	return nil
}
