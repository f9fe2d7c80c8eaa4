package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a task.
type Status int

const (
	StatusOpen       Status = iota // Created, not yet claimed
	StatusInProgress               // Claimed by a run
	StatusClosed                   // Finished, satisfies dependents
)

// String returns the wire form used in the task document.
func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusInProgress:
		return "in_progress"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("invalid(%d)", int(s))
	}
}

// IsValid reports whether s is one of the three permitted states.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusClosed:
		return true
	}
	return false
}

// ParseStatus converts the wire form into a Status, rejecting anything
// outside the three permitted values.
func ParseStatus(raw string) (Status, error) {
	switch raw {
	case "open":
		return StatusOpen, nil
	case "in_progress":
		return StatusInProgress, nil
	case "closed":
		return StatusClosed, nil
	default:
		return 0, fmt.Errorf("invalid status %q (want open, in_progress, or closed)", raw)
	}
}

// MarshalJSON writes the status as its wire string.
func (s Status) MarshalJSON() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("cannot marshal invalid status %d", int(s))
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON parses the wire string, failing on unknown values so a bad
// document is caught at load time rather than during selection.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Priority orders tasks for selection. Lower ordinal means more urgent.
type Priority int

const (
	P0 Priority = iota
	P1
	P2
	P3
)

// String returns the wire form ("P0".."P3").
func (p Priority) String() string {
	if !p.IsValid() {
		return fmt.Sprintf("invalid(%d)", int(p))
	}
	return fmt.Sprintf("P%d", int(p))
}

// IsValid reports whether p is within the defined P0..P3 range.
func (p Priority) IsValid() bool {
	return p >= P0 && p <= P3
}

// ParsePriority accepts both the "P1" wire form and a bare digit "1".
func ParsePriority(raw string) (Priority, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) == 2 && (trimmed[0] == 'P' || trimmed[0] == 'p') {
		trimmed = trimmed[1:]
	}
	if len(trimmed) == 1 && trimmed[0] >= '0' && trimmed[0] <= '3' {
		return Priority(trimmed[0] - '0'), nil
	}
	return 0, fmt.Errorf("invalid priority %q (want P0..P3)", raw)
}

// MarshalJSON writes the priority as its wire string.
func (p Priority) MarshalJSON() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("cannot marshal invalid priority %d", int(p))
	}
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts the same forms as ParsePriority.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParsePriority(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Note is a single append-only annotation on a task.
type Note struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Task is one unit of work in the store.
type Task struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title,omitempty"`
	Description        string   `json:"description,omitempty"`
	Status             Status   `json:"status"`
	Priority           Priority `json:"priority"`
	DependsOn          []string `json:"dependsOn,omitempty"`
	AcceptanceCriteria []string `json:"acceptanceCriteria,omitempty"`
	Notes              []Note   `json:"notes,omitempty"`
}

// UnmarshalJSON fills contract defaults: a task without an explicit
// priority lands at P2, and one without a status starts open.
func (t *Task) UnmarshalJSON(data []byte) error {
	type alias Task
	aux := struct {
		Priority *Priority `json:"priority"`
		*alias
	}{alias: (*alias)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Priority == nil {
		t.Priority = P2
	} else {
		t.Priority = *aux.Priority
	}
	return nil
}

// Validate checks the structural requirements enforced on every task
// entering the store.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("task id must not be empty")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("task %q: invalid status %d", t.ID, int(t.Status))
	}
	if !t.Priority.IsValid() {
		return fmt.Errorf("task %q: invalid priority %d", t.ID, int(t.Priority))
	}
	for _, dep := range t.DependsOn {
		if strings.TrimSpace(dep) == "" {
			return fmt.Errorf("task %q: empty dependency id", t.ID)
		}
	}
	return nil
}

// Clone returns a deep copy so callers can mutate the result without
// aliasing the store's slices.
func (t Task) Clone() Task {
	c := t
	if t.DependsOn != nil {
		c.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.AcceptanceCriteria != nil {
		c.AcceptanceCriteria = append([]string(nil), t.AcceptanceCriteria...)
	}
	if t.Notes != nil {
		c.Notes = append([]Note(nil), t.Notes...)
	}
	return c
}

// Index maps tasks by id for dependency lookups. Ids are unique within a
// valid document, so collisions are not handled here.
func Index(tasks []Task) map[string]Task {
	byID := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	return byID
}
