package harness

// timeoutExitCode is recorded when an attempt hits its deadline,
// matching the coreutils timeout convention.
const timeoutExitCode = 124

// Config describes the coding agent to drive.
type Config struct {
	Type      string   // "claude", "codex", or "script"
	Command   string   // binary or script to invoke
	Model     string   // optional model override
	Args      []string // extra args appended to every invocation
	WorkDir   string   // working directory for the agent
	SessionID string   // resume a previous session when non-empty
}

// Request is one task attempt handed to the harness.
type Request struct {
	TaskID string
	Prompt string
}

// Usage reports token consumption when the agent surfaces it. Agents
// that report nothing leave it zero.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total is the number charged against the run budget.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Result is what came back from one attempt. A non-zero ExitCode is a
// failed attempt, not an error; Invoke returns an error only when the
// agent could not be run at all.
type Result struct {
	ExitCode  int
	Output    string
	SessionID string
	Usage     Usage
	TimedOut  bool
}
