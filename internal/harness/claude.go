package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// ClaudeHarness drives the Claude Code CLI, one subprocess per attempt.
// The first invocation opens a session with --session-id; later ones
// resume it so the agent keeps context across tasks.
type ClaudeHarness struct {
	command   string
	workDir   string
	model     string
	extraArgs []string
	sessionID string
	started   bool
	procMgr   *ProcessManager
}

// claudeResult is the top-level JSON object the CLI prints with
// --output-format json.
type claudeResult struct {
	Type      string `json:"type"`
	IsError   bool   `json:"is_error"`
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
	Usage     struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewClaudeHarness creates a Claude Code harness. Without a configured
// session ID a fresh one is generated.
func NewClaudeHarness(cfg Config, procMgr *ProcessManager) (*ClaudeHarness, error) {
	command := cfg.Command
	if command == "" {
		command = "claude"
	}

	sessionID := cfg.SessionID
	resuming := sessionID != ""
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	return &ClaudeHarness{
		command:   command,
		workDir:   workDir,
		model:     cfg.Model,
		extraArgs: cfg.Args,
		sessionID: sessionID,
		started:   resuming,
		procMgr:   procMgr,
	}, nil
}

// Invoke runs the CLI once with the prompt and returns the attempt
// result. Timeouts are folded into the exit code; only a launch failure
// or cancellation comes back as an error.
func (h *ClaudeHarness) Invoke(ctx context.Context, req Request) (Result, error) {
	args := h.buildArgs(req.Prompt, h.started)
	cmd := newCommand(ctx, h.command, args...)
	cmd.Dir = h.workDir

	stdout, stderr, runErr := executeCommand(cmd, h.procMgr)
	code, err := classifyRunError(ctx, runErr)
	if err != nil {
		return Result{}, fmt.Errorf("claude invocation failed: %w", err)
	}

	res := Result{
		ExitCode:  code,
		SessionID: h.sessionID,
		TimedOut:  code == timeoutExitCode,
	}

	if parsed, perr := parseClaudeResult(stdout); perr == nil {
		res.Output = parsed.Result
		res.Usage = Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
		}
		if parsed.SessionID != "" {
			h.sessionID = parsed.SessionID
			res.SessionID = parsed.SessionID
		}
	} else {
		res.Output = strings.TrimSpace(string(stdout))
	}
	if len(stderr) > 0 {
		if res.Output != "" {
			res.Output += "\n"
		}
		res.Output += "[stderr]: " + strings.TrimSpace(string(stderr))
	}

	if code == 0 {
		h.started = true
	}
	return res, nil
}

// Name identifies the harness type.
func (h *ClaudeHarness) Name() string {
	return "claude"
}

// SessionID returns the current session identifier.
func (h *ClaudeHarness) SessionID() string {
	return h.sessionID
}

// buildArgs constructs the CLI arguments. The resume flag decides
// between opening the session and continuing it.
func (h *ClaudeHarness) buildArgs(prompt string, resume bool) []string {
	args := []string{"-p", prompt, "--output-format", "json"}

	if resume {
		args = append(args, "--resume", h.sessionID)
	} else {
		args = append(args, "--session-id", h.sessionID)
	}
	if h.model != "" {
		args = append(args, "--model", h.model)
	}
	args = append(args, h.extraArgs...)

	return args
}

// parseClaudeResult parses the CLI's JSON output.
func parseClaudeResult(data []byte) (claudeResult, error) {
	var cr claudeResult
	if err := json.Unmarshal(data, &cr); err != nil {
		return claudeResult{}, fmt.Errorf("failed to unmarshal claude output: %w", err)
	}
	return cr, nil
}
