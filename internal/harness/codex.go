package harness

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CodexHarness drives the Codex CLI. The first attempt uses `exec`,
// later ones `resume` with the thread ID the CLI handed back.
type CodexHarness struct {
	command   string
	workDir   string
	model     string
	extraArgs []string
	threadID  string
	procMgr   *ProcessManager
}

// codexEvent carries just enough to dispatch on the event type.
type codexEvent struct {
	Type string `json:"type"`
}

type codexThreadStarted struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id"`
}

type codexTurnCompleted struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewCodexHarness creates a Codex harness. A configured session ID is
// treated as an existing thread to resume.
func NewCodexHarness(cfg Config, procMgr *ProcessManager) (*CodexHarness, error) {
	command := cfg.Command
	if command == "" {
		command = "codex"
	}
	return &CodexHarness{
		command:   command,
		workDir:   cfg.WorkDir,
		model:     cfg.Model,
		extraArgs: cfg.Args,
		threadID:  cfg.SessionID,
		procMgr:   procMgr,
	}, nil
}

// Invoke runs the CLI once and parses its newline-delimited JSON event
// stream for the thread ID, agent output, and token usage.
func (h *CodexHarness) Invoke(ctx context.Context, req Request) (Result, error) {
	args := h.buildArgs(req.Prompt)
	cmd := newCommand(ctx, h.command, args...)
	cmd.Dir = h.workDir

	stdout, stderr, runErr := executeCommand(cmd, h.procMgr)
	code, err := classifyRunError(ctx, runErr)
	if err != nil {
		return Result{}, fmt.Errorf("codex invocation failed: %w", err)
	}

	res := Result{
		ExitCode: code,
		TimedOut: code == timeoutExitCode,
	}

	threadID, content, usage, perr := parseCodexEvents(stdout)
	if perr == nil {
		res.Output = content
		res.Usage = usage
		if threadID != "" {
			h.threadID = threadID
		}
	} else {
		res.Output = strings.TrimSpace(string(stdout))
	}
	res.SessionID = h.threadID
	if len(stderr) > 0 {
		if res.Output != "" {
			res.Output += "\n"
		}
		res.Output += "[stderr]: " + strings.TrimSpace(string(stderr))
	}
	return res, nil
}

// Name identifies the harness type.
func (h *CodexHarness) Name() string {
	return "codex"
}

// SessionID returns the current thread ID.
func (h *CodexHarness) SessionID() string {
	return h.threadID
}

// buildArgs constructs the CLI arguments. No known thread: exec. Known
// thread: resume.
func (h *CodexHarness) buildArgs(prompt string) []string {
	var args []string
	if h.threadID == "" {
		args = []string{"exec", prompt, "--json"}
	} else {
		args = []string{"resume", h.threadID, prompt, "--json"}
	}
	if h.model != "" {
		args = append(args, "--model", h.model)
	}
	args = append(args, h.extraArgs...)
	return args
}

// parseCodexEvents walks the event stream, keeping the last thread ID,
// the last completed turn's content, and summed token usage.
func parseCodexEvents(data []byte) (threadID, content string, usage Usage, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var evt codexEvent
		if parseErr := json.Unmarshal([]byte(line), &evt); parseErr != nil {
			return "", "", Usage{}, fmt.Errorf("failed to parse event type: %w", parseErr)
		}

		switch evt.Type {
		case "ThreadStarted":
			var started codexThreadStarted
			if parseErr := json.Unmarshal([]byte(line), &started); parseErr != nil {
				return "", "", Usage{}, fmt.Errorf("failed to parse ThreadStarted event: %w", parseErr)
			}
			threadID = started.ThreadID

		case "TurnCompleted":
			var completed codexTurnCompleted
			if parseErr := json.Unmarshal([]byte(line), &completed); parseErr != nil {
				return "", "", Usage{}, fmt.Errorf("failed to parse TurnCompleted event: %w", parseErr)
			}
			content = completed.Content
			usage.InputTokens += completed.Usage.InputTokens
			usage.OutputTokens += completed.Usage.OutputTokens
		}
	}

	if scanErr := scanner.Err(); scanErr != nil {
		return "", "", Usage{}, fmt.Errorf("error reading events: %w", scanErr)
	}
	return threadID, content, usage, nil
}
