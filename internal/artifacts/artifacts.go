package artifacts

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
)

const recordFile = "failure.json"

// Record is one persisted task-attempt failure. Mode travels in its wire
// form because the file is read by other tooling.
type Record struct {
	TaskID    string `json:"task_id"`
	ExitCode  int    `json:"exit_code"`
	Output    string `json:"output,omitempty"`
	Mode      string `json:"mode"`
	Timestamp string `json:"timestamp"`
}

// Store persists per-task failure records under a root directory, one
// task-scoped subdirectory each. Each write supersedes the task's
// previous record.
type Store struct {
	root  string
	locks *LockManager
}

// NewStore creates a store rooted at dir. The directory is not created;
// writes into a missing root silently no-op (see Write).
func NewStore(dir string) *Store {
	return &Store{
		root:  dir,
		locks: NewLockManager(),
	}
}

// Root returns the artifacts root directory.
func (s *Store) Root() string {
	return s.root
}

// Write stores the record for its task, replacing any earlier one. When
// the artifacts root does not exist the record is dropped without error:
// failure bookkeeping must never take down the run loop.
func (s *Store) Write(rec Record) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return nil
	}

	s.locks.Lock(rec.TaskID)
	defer s.locks.Unlock(rec.TaskID)

	dir := filepath.Join(s.root, safeDirName(rec.TaskID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating artifact directory for task %q: %w", rec.TaskID, err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling failure record: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(dir, recordFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing failure record for task %q: %w", rec.TaskID, err)
	}
	return nil
}

// Latest returns the most recent failure record for a task. The second
// return is false, with no error, when no record exists; a first attempt
// is expected to find nothing.
func (s *Store) Latest(taskID string) (Record, bool, error) {
	s.locks.Lock(taskID)
	defer s.locks.Unlock(taskID)

	path := filepath.Join(s.root, safeDirName(taskID), recordFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("reading failure record for task %q: %w", taskID, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("parsing failure record for task %q: %w", taskID, err)
	}
	return rec, true, nil
}

// Clear removes a task's failure record. Removing a record that does not
// exist is not an error.
func (s *Store) Clear(taskID string) error {
	s.locks.Lock(taskID)
	defer s.locks.Unlock(taskID)

	path := filepath.Join(s.root, safeDirName(taskID), recordFile)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing failure record for task %q: %w", taskID, err)
	}
	return nil
}

// List returns every stored failure record, sorted by task id. A missing
// root yields an empty result.
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading artifacts root %s: %w", s.root, err)
	}

	records := []Record{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.root, entry.Name(), recordFile))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading failure record in %s: %w", entry.Name(), err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("parsing failure record in %s: %w", entry.Name(), err)
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].TaskID < records[j].TaskID })
	return records, nil
}

// ClearAll removes the records for every listed task in one locked sweep.
func (s *Store) ClearAll() error {
	records, err := s.List()
	if err != nil {
		return err
	}
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.TaskID
	}

	s.locks.LockAll(ids)
	defer s.locks.UnlockAll(ids)

	for _, id := range ids {
		path := filepath.Join(s.root, safeDirName(id), recordFile)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing failure record for task %q: %w", id, err)
		}
	}
	return nil
}

// safeDirName maps an opaque task id to a filesystem-safe directory name.
// Ids may contain separators ("a/b", "a:b"), so any id that needed
// sanitizing gets a short hash suffix to keep distinct ids distinct.
func safeDirName(id string) string {
	clean := make([]rune, 0, len(id))
	changed := false
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			clean = append(clean, r)
		default:
			clean = append(clean, '-')
			changed = true
		}
	}

	name := string(clean)
	if name == "" || name == "." || name == ".." {
		name = "task"
		changed = true
	}
	if changed {
		h := fnv.New32a()
		h.Write([]byte(id))
		name = fmt.Sprintf("%s-%08x", name, h.Sum32())
	}
	return name
}
