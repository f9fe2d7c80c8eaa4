package harness

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// ScriptHarness runs an arbitrary executable as the coding agent: the
// prompt arrives on stdin, the task identity in CUB_ environment
// variables, and the exit code is the verdict. This is the escape hatch
// for wrapping agents cub has no first-class adapter for.
type ScriptHarness struct {
	command   string
	workDir   string
	extraArgs []string
	sessionID string
	procMgr   *ProcessManager
}

// NewScriptHarness creates a script harness. The command is required;
// scripts get a generated session name for correlation.
func NewScriptHarness(cfg Config, procMgr *ProcessManager) (*ScriptHarness, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("script harness requires a command")
	}

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = "cub-" + uuid.NewString()
	}

	return &ScriptHarness{
		command:   cfg.Command,
		workDir:   cfg.WorkDir,
		extraArgs: cfg.Args,
		sessionID: sessionID,
		procMgr:   procMgr,
	}, nil
}

// Invoke runs the script once. Scripts report no token usage, so the
// budget only moves for runs that also use a reporting harness.
func (h *ScriptHarness) Invoke(ctx context.Context, req Request) (Result, error) {
	cmd := newCommand(ctx, h.command, h.extraArgs...)
	cmd.Dir = h.workDir
	cmd.Stdin = strings.NewReader(req.Prompt)
	cmd.Env = append(os.Environ(),
		"CUB_TASK_ID="+req.TaskID,
		"CUB_SESSION_ID="+h.sessionID,
	)

	stdout, stderr, runErr := executeCommand(cmd, h.procMgr)
	code, err := classifyRunError(ctx, runErr)
	if err != nil {
		return Result{}, fmt.Errorf("script invocation failed: %w", err)
	}

	res := Result{
		ExitCode:  code,
		Output:    strings.TrimSpace(string(stdout)),
		SessionID: h.sessionID,
		TimedOut:  code == timeoutExitCode,
	}
	if len(stderr) > 0 {
		if res.Output != "" {
			res.Output += "\n"
		}
		res.Output += "[stderr]: " + strings.TrimSpace(string(stderr))
	}
	return res, nil
}

// Name identifies the harness type.
func (h *ScriptHarness) Name() string {
	return "script"
}

// SessionID returns the generated session name.
func (h *ScriptHarness) SessionID() string {
	return h.sessionID
}
