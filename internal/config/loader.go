package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// Load reads and merges configuration from global and project paths.
// Precedence, highest first: project config, global config, defaults.
// Missing files are not errors; malformed files are. Empty paths skip
// that layer.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := Default()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}
	return cfg, nil
}

// LoadDefault loads configuration from the conventional locations, then
// applies CUB_ environment overrides and validates the result.
// Global: <xdg config>/cub/config.json. Project: .cub/config.yaml found
// by walking up from the working directory.
func LoadDefault() (*Config, error) {
	cfg, err := Load(DefaultGlobalPath(), FindProjectConfig())
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// DefaultGlobalPath returns the per-user config location.
func DefaultGlobalPath() string {
	return filepath.Join(xdg.ConfigHome, "cub", "config.json")
}

// FindProjectConfig walks up from the working directory looking for
// .cub/config.yaml (or .yml). Returns "" when no project config exists.
func FindProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		for _, name := range []string{"config.yaml", "config.yml"} {
			candidate := filepath.Join(dir, ".cub", name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// mergeConfigFile layers one file onto the base config. Keys present in
// the file overwrite the base; absent keys keep their current values,
// which is what makes sequential unmarshaling a merge.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, base); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, base); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return nil
}

// ApplyEnv overrides config values from CUB_-prefixed environment
// variables. Unparseable values are errors, not silent fallbacks.
func ApplyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("CUB_STORE"); ok {
		cfg.Store = v
	}
	if v, ok := os.LookupEnv("CUB_FAILURE_MODE"); ok {
		cfg.Failure.Mode = v
	}
	if v, ok := os.LookupEnv("CUB_HARNESS_TYPE"); ok {
		cfg.Harness.Type = v
	}
	if v, ok := os.LookupEnv("CUB_HARNESS_COMMAND"); ok {
		cfg.Harness.Command = v
	}
	if v, ok := os.LookupEnv("CUB_HARNESS_MODEL"); ok {
		cfg.Harness.Model = v
	}
	if v, ok := os.LookupEnv("CUB_LESSONS_PATH"); ok {
		cfg.Lessons.Path = v
	}

	intVars := []struct {
		name string
		dst  *int
	}{
		{"CUB_BUDGET_LIMIT", &cfg.Budget.TokenLimit},
		{"CUB_BUDGET_WARN_PERCENT", &cfg.Budget.WarnThresholdPercent},
		{"CUB_BUDGET_MAX_TASK_ITERATIONS", &cfg.Budget.MaxTaskIterations},
		{"CUB_BUDGET_MAX_RUN_ITERATIONS", &cfg.Budget.MaxRunIterations},
		{"CUB_HARNESS_TIMEOUT", &cfg.Harness.TimeoutSeconds},
	}
	for _, v := range intVars {
		raw, ok := os.LookupEnv(v.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("parsing %s=%q: %w", v.name, raw, err)
		}
		*v.dst = n
	}

	boolVars := []struct {
		name string
		dst  *bool
	}{
		{"CUB_GIT_REQUIRE_CLEAN", &cfg.Git.RequireClean},
		{"CUB_LESSONS_ENABLED", &cfg.Lessons.Enabled},
	}
	for _, v := range boolVars {
		raw, ok := os.LookupEnv(v.name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parsing %s=%q: %w", v.name, raw, err)
		}
		*v.dst = b
	}

	return nil
}
