package policy

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lavallee/cub-sub002/internal/artifacts"
	"github.com/lavallee/cub-sub002/internal/budget"
)

// maxOutputBytes caps the error text stored in a failure record, keeping
// retry prompts bounded.
const maxOutputBytes = 2048

// Signal tells the run loop what to do after a classified failure.
type Signal int

const (
	SignalContinue     Signal = iota // Abandon the task for this run, advance
	SignalHalt                       // End the whole run
	SignalRetryCurrent               // Re-attempt the same task
)

// String describes the signal for logs and ledger rows.
func (s Signal) String() string {
	switch s {
	case SignalContinue:
		return "continue"
	case SignalHalt:
		return "halt"
	case SignalRetryCurrent:
		return "retry-current"
	default:
		return fmt.Sprintf("invalid(%d)", int(s))
	}
}

// IsValid reports whether s is one of the three defined signals.
func (s Signal) IsValid() bool {
	switch s {
	case SignalContinue, SignalHalt, SignalRetryCurrent:
		return true
	}
	return false
}

// Mode classifies one failed attempt. ModeUnknown is the zero value and
// what a record carries when no explicit mode was applied.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeStop
	ModeMoveOn
	ModeRetry
	ModeRetryLimitExceeded
	ModeTriage
)

// String returns the wire form stored in failure records.
func (m Mode) String() string {
	switch m {
	case ModeUnknown:
		return "unknown"
	case ModeStop:
		return "stop"
	case ModeMoveOn:
		return "move-on"
	case ModeRetry:
		return "retry"
	case ModeRetryLimitExceeded:
		return "retry-limit-exceeded"
	case ModeTriage:
		return "triage"
	default:
		return fmt.Sprintf("invalid(%d)", int(m))
	}
}

// ParseMode converts the wire form back into a Mode.
func ParseMode(raw string) (Mode, error) {
	switch raw {
	case "unknown":
		return ModeUnknown, nil
	case "stop":
		return ModeStop, nil
	case "move-on":
		return ModeMoveOn, nil
	case "retry":
		return ModeRetry, nil
	case "retry-limit-exceeded":
		return ModeRetryLimitExceeded, nil
	case "triage":
		return ModeTriage, nil
	default:
		return ModeUnknown, fmt.Errorf("invalid failure mode %q", raw)
	}
}

// Dispatchable reports whether the mode can serve as a run's configured
// failure policy. retry-limit-exceeded and unknown only ever appear in
// records, never in config.
func (m Mode) Dispatchable() bool {
	switch m {
	case ModeStop, ModeMoveOn, ModeRetry, ModeTriage:
		return true
	}
	return false
}

// TriageFunc resolves a triage escalation to a signal: an operator
// choosing to continue, retry, or halt. A nil func, or an invalid
// signal, resolves to continue; stop stays the only hard-fatal mode.
type TriageFunc func(taskID string, rec artifacts.Record) Signal

// Options carries the optional collaborators of a Machine.
type Options struct {
	Lessons *Recorder
	Triage  TriageFunc
	Logger  *slog.Logger
}

// Machine classifies failed task attempts into exactly one mode per
// attempt and persists a failure record for each. One instance serves a
// whole run; retry accounting lives in the shared budget tracker.
type Machine struct {
	tracker *budget.Tracker
	records *artifacts.Store
	lessons *Recorder
	triage  TriageFunc
	log     *slog.Logger
}

// NewMachine creates a policy machine over the given tracker and record
// store.
func NewMachine(tracker *budget.Tracker, records *artifacts.Store, opts Options) *Machine {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		tracker: tracker,
		records: records,
		lessons: opts.Lessons,
		triage:  opts.Triage,
		log:     log,
	}
}

// Handle dispatches a failure through the configured mode and returns
// the loop signal. An undispatchable mode degrades to continue with an
// unknown-mode record; keeping the loop alive beats crashing over a bad
// policy value.
func (m *Machine) Handle(mode Mode, taskID string, exitCode int, output, title string) (Signal, error) {
	switch mode {
	case ModeStop:
		return m.HandleStop(taskID, exitCode, output)
	case ModeMoveOn:
		return m.HandleMoveOn(taskID, exitCode, output)
	case ModeRetry:
		return m.HandleRetry(taskID, exitCode, output, title)
	case ModeTriage:
		return m.HandleTriage(taskID, exitCode, output)
	default:
		m.log.Warn("undispatchable failure mode, treating as move-on", "mode", mode.String(), "task", taskID)
		if err := m.validateTaskID(taskID); err != nil {
			return SignalContinue, err
		}
		m.store(taskID, exitCode, output, ModeUnknown)
		return SignalContinue, nil
	}
}

// HandleStop records the failure and halts the entire run.
func (m *Machine) HandleStop(taskID string, exitCode int, output string) (Signal, error) {
	if err := m.validateTaskID(taskID); err != nil {
		return SignalHalt, err
	}
	m.store(taskID, exitCode, output, ModeStop)
	return SignalHalt, nil
}

// HandleMoveOn records the failure and abandons the task for this run.
// The task itself is not touched; it stays in whatever status it had.
func (m *Machine) HandleMoveOn(taskID string, exitCode int, output string) (Signal, error) {
	if err := m.validateTaskID(taskID); err != nil {
		return SignalContinue, err
	}
	m.store(taskID, exitCode, output, ModeMoveOn)
	return SignalContinue, nil
}

// HandleRetry counts the attempt and either asks the loop to re-run the
// task or, once the per-task ceiling is exceeded, falls back to move-on
// semantics. The fallback signal is indistinguishable from an explicit
// move-on, so the loop needs no special case for exhausted retries. When
// a title is supplied, exhaustion also appends a lesson.
func (m *Machine) HandleRetry(taskID string, exitCode int, output, title string) (Signal, error) {
	if err := m.validateTaskID(taskID); err != nil {
		return SignalContinue, err
	}

	m.tracker.IncrementTaskIterations(taskID)
	if m.tracker.CheckTaskIterations(taskID) {
		m.store(taskID, exitCode, output, ModeRetry)
		return SignalRetryCurrent, nil
	}

	m.store(taskID, exitCode, output, ModeRetryLimitExceeded)
	if m.lessons != nil && title != "" {
		if err := m.lessons.RecordExhaustion(taskID, title, exitCode, output); err != nil {
			m.log.Warn("failed to record lesson", "task", taskID, "error", err)
		}
	}
	return SignalContinue, nil
}

// HandleTriage records the failure and escalates to the triage answerer.
// Without one, or when the answer is malformed, the run continues.
func (m *Machine) HandleTriage(taskID string, exitCode int, output string) (Signal, error) {
	if err := m.validateTaskID(taskID); err != nil {
		return SignalContinue, err
	}

	rec := m.store(taskID, exitCode, output, ModeTriage)
	if m.triage == nil {
		return SignalContinue, nil
	}
	sig := m.triage(taskID, rec)
	if !sig.IsValid() {
		m.log.Warn("triage returned invalid signal, continuing", "task", taskID, "signal", int(sig))
		return SignalContinue, nil
	}
	return sig, nil
}

// Context formats the most recent failure record into a short paragraph
// for the next prompt. A task with no record yields an empty string;
// that is the expected first-attempt case, not an error.
func (m *Machine) Context(taskID string) string {
	rec, ok, err := m.records.Latest(taskID)
	if err != nil {
		m.log.Warn("failed to read failure record", "task", taskID, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	if rec.Output != "" {
		return fmt.Sprintf("Previous attempt failed with exit code %d: %s. Please try a different approach.",
			rec.ExitCode, rec.Output)
	}
	return fmt.Sprintf("Previous attempt failed with exit code %d. Please try a different approach.", rec.ExitCode)
}

// StoreInfo is the shared persistence primitive beneath the handlers:
// it stamps and truncates the failure details and writes the record.
// A missing artifacts root degrades to a silent no-op.
func (m *Machine) StoreInfo(taskID string, exitCode int, output string, mode Mode) error {
	if err := m.validateTaskID(taskID); err != nil {
		return err
	}
	rec := buildRecord(taskID, exitCode, output, mode)
	return m.records.Write(rec)
}

// store wraps StoreInfo for the handlers: a failed write is logged and
// swallowed, because failure bookkeeping must never crash the loop.
func (m *Machine) store(taskID string, exitCode int, output string, mode Mode) artifacts.Record {
	rec := buildRecord(taskID, exitCode, output, mode)
	if err := m.records.Write(rec); err != nil {
		m.log.Warn("failed to store failure record", "task", taskID, "mode", mode.String(), "error", err)
	}
	return rec
}

func (m *Machine) validateTaskID(taskID string) error {
	if strings.TrimSpace(taskID) == "" {
		return fmt.Errorf("task id must not be empty")
	}
	return nil
}

func buildRecord(taskID string, exitCode int, output string, mode Mode) artifacts.Record {
	return artifacts.Record{
		TaskID:    taskID,
		ExitCode:  exitCode,
		Output:    truncate(output, maxOutputBytes),
		Mode:      mode.String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
