package harness

import (
	"context"
	"fmt"
)

// Harness drives one coding agent CLI. Implementations keep session
// state across invocations so the agent retains context for the whole
// run.
type Harness interface {
	// Invoke runs the agent once with the given prompt and waits for it
	// to exit. Context cancellation kills the agent's process group.
	Invoke(ctx context.Context, req Request) (Result, error)

	// Name identifies the harness type in logs and the ledger.
	Name() string

	// SessionID returns the current session identifier, if the harness
	// tracks one.
	SessionID() string
}

// New creates a harness from the configuration, switching on cfg.Type.
func New(cfg Config, pm *ProcessManager) (Harness, error) {
	switch cfg.Type {
	case "claude":
		return NewClaudeHarness(cfg, pm)
	case "codex":
		return NewCodexHarness(cfg, pm)
	case "script":
		return NewScriptHarness(cfg, pm)
	default:
		return nil, fmt.Errorf("unknown harness type: %s", cfg.Type)
	}
}
