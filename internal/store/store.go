package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lavallee/cub-sub002/internal/task"
)

var (
	// ErrNotFound is returned when a task id does not exist in the document.
	ErrNotFound = errors.New("task not found")
	// ErrExists is returned when creating a task whose id is already taken.
	ErrExists = errors.New("task already exists")
)

// Document is the persisted shape of the store: a single JSON object
// holding the full task list. The file layout is an external contract
// shared with other tools, so nothing beyond this shape is written.
type Document struct {
	Tasks []task.Task `json:"tasks"`
}

// FileStore persists tasks as one JSON document with single-writer,
// whole-file semantics. All mutation goes through Mutate, which saves only
// when the mutation function succeeds, so a failed operation never leaves
// a half-written document behind.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the document at path. The file is
// not touched until the first load or save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Exists reports whether the backing document is present on disk.
func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads and validates the document. A missing file yields an empty
// document rather than an error, so "nothing to do" and "broken data"
// stay distinguishable.
func (s *FileStore) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &Document{Tasks: []task.Task{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading task store %s: %w", s.path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing task store %s: %w", s.path, err)
	}
	if doc.Tasks == nil {
		doc.Tasks = []task.Task{}
	}
	if err := validateDocument(&doc); err != nil {
		return nil, fmt.Errorf("task store %s: %w", s.path, err)
	}
	return &doc, nil
}

func (s *FileStore) save(doc *Document) error {
	if err := validateDocument(doc); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling task store: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	// Write-then-rename keeps the document whole even if the process dies
	// mid-save.
	tmp, err := os.CreateTemp(dir, ".tasks-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing task store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing task store %s: %w", s.path, err)
	}
	return nil
}

// Mutate loads the document, applies fn, and saves only when fn returns
// nil. An error from fn aborts the cycle with the file untouched.
func (s *FileStore) Mutate(fn func(*Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(doc)
}

// List returns deep copies of all tasks in document order.
func (s *FileStore) List() ([]task.Task, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := make([]task.Task, len(doc.Tasks))
	for i, t := range doc.Tasks {
		out[i] = t.Clone()
	}
	return out, nil
}

// Get returns a copy of one task by id.
func (s *FileStore) Get(id string) (task.Task, error) {
	doc, err := s.Load()
	if err != nil {
		return task.Task{}, err
	}
	idx := findTask(doc, id)
	if idx < 0 {
		return task.Task{}, fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	return doc.Tasks[idx].Clone(), nil
}

// Create appends a new task to the document.
func (s *FileStore) Create(t task.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return s.Mutate(func(doc *Document) error {
		if findTask(doc, t.ID) >= 0 {
			return fmt.Errorf("task %q: %w", t.ID, ErrExists)
		}
		doc.Tasks = append(doc.Tasks, t.Clone())
		return nil
	})
}

// SetStatus updates one task's status, appending an audit note when text
// is supplied.
func (s *FileStore) SetStatus(id string, status task.Status, note string) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status %d", int(status))
	}
	return s.Mutate(func(doc *Document) error {
		idx := findTask(doc, id)
		if idx < 0 {
			return fmt.Errorf("task %q: %w", id, ErrNotFound)
		}
		doc.Tasks[idx].Status = status
		if note != "" {
			appendNote(&doc.Tasks[idx], note)
		}
		return nil
	})
}

// AppendNote adds a timestamped annotation to a task.
func (s *FileStore) AppendNote(id, text string) error {
	if text == "" {
		return fmt.Errorf("note text must not be empty")
	}
	return s.Mutate(func(doc *Document) error {
		idx := findTask(doc, id)
		if idx < 0 {
			return fmt.Errorf("task %q: %w", id, ErrNotFound)
		}
		appendNote(&doc.Tasks[idx], text)
		return nil
	})
}

// Import replaces the whole document. The incoming document is validated
// before anything is written.
func (s *FileStore) Import(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.Tasks == nil {
		doc.Tasks = []task.Task{}
	}
	return s.save(doc)
}

func appendNote(t *task.Task, text string) {
	t.Notes = append(t.Notes, task.Note{Time: time.Now().UTC(), Text: text})
}

func findTask(doc *Document, id string) int {
	for i := range doc.Tasks {
		if doc.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func validateDocument(doc *Document) error {
	seen := make(map[string]struct{}, len(doc.Tasks))
	for i := range doc.Tasks {
		t := &doc.Tasks[i]
		if err := t.Validate(); err != nil {
			return err
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("duplicate task id %q", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}
