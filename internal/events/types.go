package events

import (
	"time"
)

// Event is the base interface for everything published on the bus.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicRun    = "run"
	TopicTask   = "task"
	TopicGraph  = "graph"
	TopicBudget = "budget"
	TopicTriage = "triage"
)

// Event type constants
const (
	EventTypeRunStarted      = "run.started"
	EventTypeRunFinished     = "run.finished"
	EventTypeTaskStarted     = "task.started"
	EventTypeTaskOutput      = "task.output"
	EventTypeTaskCompleted   = "task.completed"
	EventTypeTaskFailed      = "task.failed"
	EventTypeGraphProgress   = "graph.progress"
	EventTypeBudgetWarning   = "budget.warning"
	EventTypeTriageRequested = "triage.requested"
)

// RunStartedEvent is published once when a run begins.
type RunStartedEvent struct {
	RunID     string
	Mode      string
	Harness   string
	Timestamp time.Time
}

func (e RunStartedEvent) EventType() string { return EventTypeRunStarted }
func (e RunStartedEvent) TaskID() string    { return "" }

// RunFinishedEvent is published once when a run ends, whatever the
// outcome.
type RunFinishedEvent struct {
	RunID     string
	Outcome   string
	Completed int
	Failed    int
	Duration  time.Duration
	Timestamp time.Time
}

func (e RunFinishedEvent) EventType() string { return EventTypeRunFinished }
func (e RunFinishedEvent) TaskID() string    { return "" }

// TaskStartedEvent is published when the harness is invoked for a task.
type TaskStartedEvent struct {
	ID        string
	Title     string
	Attempt   int
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskOutputEvent is published for each line of harness output.
type TaskOutputEvent struct {
	ID        string
	Line      string
	Timestamp time.Time
}

func (e TaskOutputEvent) EventType() string { return EventTypeTaskOutput }
func (e TaskOutputEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task attempt exits zero and the
// task is closed.
type TaskCompletedEvent struct {
	ID        string
	Tokens    int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task attempt fails, along with the
// signal the failure policy chose.
type TaskFailedEvent struct {
	ID        string
	ExitCode  int
	Signal    string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// GraphProgressEvent is published after each iteration with the current
// shape of the task graph.
type GraphProgressEvent struct {
	Total      int
	Closed     int
	InProgress int
	Open       int
	Ready      int
	Blocked    int
	Timestamp  time.Time
}

func (e GraphProgressEvent) EventType() string { return EventTypeGraphProgress }
func (e GraphProgressEvent) TaskID() string    { return "" }

// BudgetWarningEvent is published at most once per run when token usage
// crosses the warning threshold.
type BudgetWarningEvent struct {
	Used      int
	Limit     int
	Percent   int
	Timestamp time.Time
}

func (e BudgetWarningEvent) EventType() string { return EventTypeBudgetWarning }
func (e BudgetWarningEvent) TaskID() string    { return "" }

// TriageRequestedEvent is published when a failure escalates to the
// operator for a decision.
type TriageRequestedEvent struct {
	ID        string
	ExitCode  int
	Output    string
	Timestamp time.Time
}

func (e TriageRequestedEvent) EventType() string { return EventTypeTriageRequested }
func (e TriageRequestedEvent) TaskID() string    { return e.ID }
