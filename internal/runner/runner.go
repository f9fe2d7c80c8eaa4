// Package runner drives the autonomous loop: select a ready task, invoke
// the harness, record the result, and obey the failure policy until the
// graph, the budget, or the operator says stop.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/lavallee/cub-sub002/internal/artifacts"
	"github.com/lavallee/cub-sub002/internal/budget"
	"github.com/lavallee/cub-sub002/internal/events"
	"github.com/lavallee/cub-sub002/internal/gitx"
	"github.com/lavallee/cub-sub002/internal/graph"
	"github.com/lavallee/cub-sub002/internal/harness"
	"github.com/lavallee/cub-sub002/internal/ledger"
	"github.com/lavallee/cub-sub002/internal/policy"
	"github.com/lavallee/cub-sub002/internal/ready"
	"github.com/lavallee/cub-sub002/internal/store"
	"github.com/lavallee/cub-sub002/internal/task"
)

const (
	// maxAttemptOutput bounds the output stored per ledger attempt row.
	maxAttemptOutput = 4096
	// maxOutputLines bounds the output lines republished as events.
	maxOutputLines = 100
)

// Outcome classifies how a run ended.
type Outcome int

const (
	OutcomeDone Outcome = iota // no ready tasks remain
	OutcomeHalted
	OutcomeBudgetExhausted
	OutcomeIterationsExhausted
	OutcomeCancelled
)

// String returns the wire form recorded in the ledger.
func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeHalted:
		return "halted"
	case OutcomeBudgetExhausted:
		return "budget-exhausted"
	case OutcomeIterationsExhausted:
		return "iterations-exhausted"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("invalid(%d)", int(o))
	}
}

// Summary reports what a run accomplished.
type Summary struct {
	RunID      string
	Outcome    Outcome
	Iterations int            // completed loop passes
	Completed  int            // tasks closed
	Failed     int            // tasks left with a failing last attempt
	TokensUsed int            // summed across attempts, budget or not
	Attempts   map[string]int // attempt count per task id
	Duration   time.Duration
}

// Options configures a Loop. Store, Harness, Tracker, and Policy are
// required; Ledger, Bus, Git, and Artifacts degrade to no-ops when nil.
type Options struct {
	Store     *store.FileStore
	Harness   harness.Harness
	Tracker   *budget.Tracker
	Policy    *policy.Machine
	Artifacts *artifacts.Store
	Ledger    *ledger.Store
	Bus       *events.Bus
	Git       *gitx.Client
	Logger    *slog.Logger

	Mode           policy.Mode   // failure mode dispatched on non-zero exits
	WarnPercent    int           // budget warning threshold (default 90)
	AttemptTimeout time.Duration // per-attempt ceiling; 0 means none
	RequireClean   bool          // refuse to start on a dirty worktree
	Once           bool          // stop after the first attempt
	Retry          RetryConfig   // transport retry; zero value means defaults
	Breakers       *CircuitBreakerRegistry
}

// Loop runs tasks until a terminal state is reached.
type Loop struct {
	opts Options
	log  *slog.Logger
}

// runState is the mutable bookkeeping for one Run invocation.
type runState struct {
	summary Summary
	failed  map[string]bool
	retry   *task.Task // re-attempt this task instead of selecting
}

// New validates the options and builds a Loop.
func New(opts Options) (*Loop, error) {
	if opts.Store == nil {
		return nil, errors.New("runner: task store is required")
	}
	if opts.Harness == nil {
		return nil, errors.New("runner: harness is required")
	}
	if opts.Tracker == nil {
		return nil, errors.New("runner: budget tracker is required")
	}
	if opts.Policy == nil {
		return nil, errors.New("runner: failure policy is required")
	}
	if !opts.Mode.Dispatchable() {
		return nil, fmt.Errorf("runner: failure mode %s is not dispatchable", opts.Mode)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.WarnPercent <= 0 {
		opts.WarnPercent = 90
	}
	if opts.Retry == (RetryConfig{}) {
		opts.Retry = DefaultRetryConfig()
	}
	if opts.Breakers == nil {
		opts.Breakers = NewCircuitBreakerRegistry()
	}
	return &Loop{opts: opts, log: opts.Logger}, nil
}

// Run executes the loop until a terminal outcome. Terminal states reached
// by the loop itself (done, halted, exhausted budgets, cancellation) come
// back in the Summary with a nil error; an error means infrastructure
// failed and the run could not continue.
func (l *Loop) Run(ctx context.Context) (summary Summary, err error) {
	start := time.Now()
	st := &runState{
		summary: Summary{
			RunID:    uuid.NewString(),
			Outcome:  OutcomeDone,
			Attempts: make(map[string]int),
		},
		failed: make(map[string]bool),
	}

	// Readiness output is never trusted over bad data: an invalid graph
	// aborts before any selection.
	tasks, err := l.opts.Store.List()
	if err != nil {
		return st.summary, fmt.Errorf("failed to load task store: %w", err)
	}
	if result := graph.Validate(tasks); !result.Valid() {
		return st.summary, fmt.Errorf("refusing to run with an invalid task graph: %w", result.Err())
	}

	if l.opts.RequireClean && l.opts.Git != nil {
		clean, cerr := l.opts.Git.IsClean()
		if cerr != nil {
			return st.summary, fmt.Errorf("failed to check worktree state: %w", cerr)
		}
		if !clean {
			status, _ := l.opts.Git.StatusSummary()
			return st.summary, fmt.Errorf("worktree has uncommitted changes:\n%s", status)
		}
	}

	harnessName := l.opts.Harness.Name()
	cb := l.opts.Breakers.Get(harnessName)

	if l.opts.Ledger != nil {
		if lerr := l.opts.Ledger.RecordRun(ctx, ledger.Run{ID: st.summary.RunID, Mode: l.opts.Mode.String(), Harness: harnessName}); lerr != nil {
			l.log.Warn("failed to record run", "run_id", st.summary.RunID, "error", lerr)
		}
	}

	l.log.Info("run started", "run_id", st.summary.RunID, "mode", l.opts.Mode.String(), "harness", harnessName)
	l.publish(events.TopicRun, events.RunStartedEvent{
		RunID:     st.summary.RunID,
		Mode:      l.opts.Mode.String(),
		Harness:   harnessName,
		Timestamp: time.Now(),
	})

	defer func() {
		st.summary.Duration = time.Since(start)
		st.summary.Failed = len(st.failed)

		if l.opts.Ledger != nil {
			// The run context may already be cancelled, so the final
			// ledger write gets its own deadline.
			fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if lerr := l.opts.Ledger.FinishRun(fctx, st.summary.RunID, st.summary.Outcome.String(), st.summary.Completed, st.summary.Failed, st.summary.TokensUsed); lerr != nil {
				l.log.Warn("failed to finish run", "run_id", st.summary.RunID, "error", lerr)
			}
		}

		l.log.Info("run finished",
			"run_id", st.summary.RunID,
			"outcome", st.summary.Outcome.String(),
			"completed", st.summary.Completed,
			"failed", st.summary.Failed,
			"tokens", st.summary.TokensUsed,
			"iterations", st.summary.Iterations,
		)
		l.publish(events.TopicRun, events.RunFinishedEvent{
			RunID:     st.summary.RunID,
			Outcome:   st.summary.Outcome.String(),
			Completed: st.summary.Completed,
			Failed:    st.summary.Failed,
			Duration:  st.summary.Duration,
			Timestamp: time.Now(),
		})

		summary = st.summary
	}()

	for {
		if ctx.Err() != nil {
			st.summary.Outcome = OutcomeCancelled
			return st.summary, nil
		}

		n := l.opts.Tracker.IncrementRunIterations()
		if !l.opts.Tracker.CheckRunIterations() {
			l.log.Warn("run iteration ceiling reached", "ceiling", l.opts.Tracker.MaxRunIterations())
			st.summary.Outcome = OutcomeIterationsExhausted
			return st.summary, nil
		}
		st.summary.Iterations = n

		// Token budget gate. An uninitialized tracker means no budget was
		// configured for this run.
		withinBudget, berr := l.opts.Tracker.Check()
		switch {
		case errors.Is(berr, budget.ErrNotInitialized):
		case berr != nil:
			return st.summary, fmt.Errorf("budget check failed: %w", berr)
		case !withinBudget:
			l.log.Warn("token budget exhausted", "used", l.opts.Tracker.Used(), "limit", l.opts.Tracker.Limit())
			st.summary.Outcome = OutcomeBudgetExhausted
			return st.summary, nil
		default:
			l.warnOnBudget()
		}

		tasks, lerr := l.opts.Store.List()
		if lerr != nil {
			return st.summary, fmt.Errorf("failed to load task store: %w", lerr)
		}
		l.publishProgress(tasks)

		var current task.Task
		if st.retry != nil {
			current = *st.retry
			st.retry = nil
		} else {
			readyTasks := ready.Ready(tasks)
			if len(readyTasks) == 0 {
				open := 0
				for _, t := range tasks {
					if t.Status == task.StatusOpen {
						open++
					}
				}
				l.log.Info("no ready tasks remain", "open", open, "blocked", len(ready.Blocked(tasks)))
				st.summary.Outcome = OutcomeDone
				return st.summary, nil
			}
			current = readyTasks[0]

			if serr := l.opts.Store.SetStatus(current.ID, task.StatusInProgress, "claimed by run "+st.summary.RunID); serr != nil {
				return st.summary, fmt.Errorf("failed to claim task %s: %w", current.ID, serr)
			}
		}

		signal, aerr := l.attempt(ctx, cb, st, current)
		if aerr != nil {
			if ctx.Err() != nil {
				st.summary.Outcome = OutcomeCancelled
				return st.summary, nil
			}
			return st.summary, aerr
		}

		if signal == policy.SignalRetryCurrent {
			st.retry = &current
		}

		if l.opts.Once {
			if signal == policy.SignalHalt {
				st.summary.Outcome = OutcomeHalted
			}
			return st.summary, nil
		}

		if signal == policy.SignalHalt {
			st.summary.Outcome = OutcomeHalted
			return st.summary, nil
		}
	}
}

// attempt runs the harness once against the claimed task and applies the
// result: close on success, dispatch the failure policy otherwise.
func (l *Loop) attempt(ctx context.Context, cb *gobreaker.CircuitBreaker, st *runState, current task.Task) (policy.Signal, error) {
	attemptNo := st.summary.Attempts[current.ID] + 1
	st.summary.Attempts[current.ID] = attemptNo

	l.log.Info("task attempt started", "task", current.ID, "attempt", attemptNo)
	l.publish(events.TopicTask, events.TaskStartedEvent{
		ID:        current.ID,
		Title:     current.Title,
		Attempt:   attemptNo,
		Timestamp: time.Now(),
	})

	req := harness.Request{
		TaskID: current.ID,
		Prompt: BuildPrompt(current, l.opts.Policy.Context(current.ID)),
	}

	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if l.opts.AttemptTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, l.opts.AttemptTimeout)
	}
	started := time.Now()
	res, err := invokeWithRetry(attemptCtx, l.opts.Harness, req, cb, l.opts.Retry)
	cancel()
	elapsed := time.Since(started)

	if err != nil {
		return policy.SignalContinue, fmt.Errorf("harness invocation failed for task %s: %w", current.ID, err)
	}

	tokens := res.Usage.Total()
	st.summary.TokensUsed += tokens
	if rerr := l.opts.Tracker.Record(tokens); rerr != nil && !errors.Is(rerr, budget.ErrNotInitialized) {
		l.log.Warn("failed to record token usage", "task", current.ID, "error", rerr)
	}

	if l.opts.Ledger != nil && res.SessionID != "" {
		if serr := l.opts.Ledger.SaveSession(ctx, current.ID, res.SessionID, l.opts.Harness.Name()); serr != nil {
			l.log.Warn("failed to save session", "task", current.ID, "error", serr)
		}
	}

	l.publishOutput(current.ID, res.Output)

	if res.ExitCode == 0 {
		if serr := l.opts.Store.SetStatus(current.ID, task.StatusClosed, "closed by run "+st.summary.RunID); serr != nil {
			return policy.SignalContinue, fmt.Errorf("failed to close task %s: %w", current.ID, serr)
		}
		st.summary.Completed++
		delete(st.failed, current.ID)

		if l.opts.Artifacts != nil {
			if aerr := l.opts.Artifacts.Clear(current.ID); aerr != nil {
				l.log.Warn("failed to clear failure records", "task", current.ID, "error", aerr)
			}
		}
		if l.opts.Ledger != nil {
			if serr := l.opts.Ledger.ClearSession(ctx, current.ID); serr != nil {
				l.log.Warn("failed to clear session", "task", current.ID, "error", serr)
			}
		}

		l.recordAttempt(ctx, st, current.ID, attemptNo, res, tokens, elapsed, "")
		l.log.Info("task completed", "task", current.ID, "attempt", attemptNo, "tokens", tokens, "duration", elapsed)
		l.publish(events.TopicTask, events.TaskCompletedEvent{
			ID:        current.ID,
			Tokens:    tokens,
			Duration:  elapsed,
			Timestamp: time.Now(),
		})
		return policy.SignalContinue, nil
	}

	l.log.Warn("task attempt failed", "task", current.ID, "attempt", attemptNo, "exit_code", res.ExitCode, "timed_out", res.TimedOut)
	st.failed[current.ID] = true

	if l.opts.Mode == policy.ModeTriage {
		l.publish(events.TopicTriage, events.TriageRequestedEvent{
			ID:        current.ID,
			ExitCode:  res.ExitCode,
			Output:    res.Output,
			Timestamp: time.Now(),
		})
	}

	signal, perr := l.opts.Policy.Handle(l.opts.Mode, current.ID, res.ExitCode, res.Output, current.Title)
	if perr != nil {
		return policy.SignalContinue, fmt.Errorf("failure policy dispatch for task %s: %w", current.ID, perr)
	}

	l.recordAttempt(ctx, st, current.ID, attemptNo, res, tokens, elapsed, signal.String())
	l.publish(events.TopicTask, events.TaskFailedEvent{
		ID:        current.ID,
		ExitCode:  res.ExitCode,
		Signal:    signal.String(),
		Duration:  elapsed,
		Timestamp: time.Now(),
	})
	return signal, nil
}

// warnOnBudget publishes the one-shot threshold warning; the tracker
// guarantees it fires at most once per run.
func (l *Loop) warnOnBudget() {
	warned, err := l.opts.Tracker.CheckWarning(l.opts.WarnPercent)
	if err != nil || !warned {
		return
	}
	used, limit := l.opts.Tracker.Used(), l.opts.Tracker.Limit()
	percent := 100
	if limit > 0 {
		percent = used * 100 / limit
	}
	l.log.Warn("token budget warning threshold crossed", "used", used, "limit", limit, "percent", percent)
	l.publish(events.TopicBudget, events.BudgetWarningEvent{
		Used:      used,
		Limit:     limit,
		Percent:   percent,
		Timestamp: time.Now(),
	})
}

func (l *Loop) recordAttempt(ctx context.Context, st *runState, taskID string, attemptNo int, res harness.Result, tokens int, elapsed time.Duration, signal string) {
	if l.opts.Ledger == nil {
		return
	}
	att := ledger.Attempt{
		RunID:    st.summary.RunID,
		TaskID:   taskID,
		Attempt:  attemptNo,
		ExitCode: res.ExitCode,
		Signal:   signal,
		Output:   clip(res.Output, maxAttemptOutput),
		Tokens:   tokens,
		Duration: elapsed,
	}
	if err := l.opts.Ledger.RecordAttempt(ctx, att); err != nil {
		l.log.Warn("failed to record attempt", "task", taskID, "error", err)
	}
}

func (l *Loop) publish(topic string, ev events.Event) {
	if l.opts.Bus == nil {
		return
	}
	l.opts.Bus.Publish(topic, ev)
}

// publishOutput republishes the tail of the harness output as line
// events for live views.
func (l *Loop) publishOutput(taskID, output string) {
	if l.opts.Bus == nil || output == "" {
		return
	}
	lines := strings.Split(output, "\n")
	if len(lines) > maxOutputLines {
		lines = lines[len(lines)-maxOutputLines:]
	}
	now := time.Now()
	for _, line := range lines {
		if line == "" {
			continue
		}
		l.opts.Bus.Publish(events.TopicTask, events.TaskOutputEvent{ID: taskID, Line: line, Timestamp: now})
	}
}

func (l *Loop) publishProgress(tasks []task.Task) {
	if l.opts.Bus == nil {
		return
	}
	var open, inProgress, closed int
	for _, t := range tasks {
		switch t.Status {
		case task.StatusOpen:
			open++
		case task.StatusInProgress:
			inProgress++
		case task.StatusClosed:
			closed++
		}
	}
	l.opts.Bus.Publish(events.TopicGraph, events.GraphProgressEvent{
		Total:      len(tasks),
		Closed:     closed,
		InProgress: inProgress,
		Open:       open,
		Ready:      len(ready.Ready(tasks)),
		Blocked:    len(ready.Blocked(tasks)),
		Timestamp:  time.Now(),
	})
}

// clip cuts s to at most max bytes without splitting a rune.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
