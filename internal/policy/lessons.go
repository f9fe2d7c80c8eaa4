package policy

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Lesson is one entry in the append-only knowledge log, written when a
// task exhausts its retry budget. Repeated failures should leave
// something behind for the next planning pass instead of evaporating.
type Lesson struct {
	TaskID    string `json:"task_id"`
	Title     string `json:"title"`
	ExitCode  int    `json:"exit_code"`
	Output    string `json:"output,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Recorder appends lessons to a JSON-lines file, one object per line.
type Recorder struct {
	mu   sync.Mutex
	path string
}

// NewRecorder creates a recorder writing to the given path.
func NewRecorder(path string) *Recorder {
	return &Recorder{path: path}
}

// Path returns the lessons file location.
func (r *Recorder) Path() string {
	return r.path
}

// RecordExhaustion appends a lesson for a task that burned through its
// retries. A missing parent directory degrades to a no-op, the same
// policy failure records follow.
func (r *Recorder) RecordExhaustion(taskID, title string, exitCode int, output string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(filepath.Dir(r.path)); os.IsNotExist(err) {
		return nil
	}

	entry := Lesson{
		TaskID:    taskID,
		Title:     title,
		ExitCode:  exitCode,
		Output:    truncate(output, maxOutputBytes),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal lesson: %w", err)
	}

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lessons file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append lesson: %w", err)
	}
	return nil
}

// List reads back every recorded lesson in append order. A missing file
// yields an empty list.
func (r *Recorder) List() ([]Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Lesson{}, nil
		}
		return nil, fmt.Errorf("failed to open lessons file: %w", err)
	}
	defer f.Close()

	lessons := []Lesson{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var l Lesson
		if err := json.Unmarshal(line, &l); err != nil {
			return nil, fmt.Errorf("failed to parse lesson: %w", err)
		}
		lessons = append(lessons, l)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lessons file: %w", err)
	}
	return lessons, nil
}
