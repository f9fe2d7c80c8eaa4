package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecordRun inserts a live run row. Outcome, counters, and finished_at
// stay empty until FinishRun.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, mode, harness, started_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, run.ID, run.Mode, run.Harness)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// FinishRun marks a run as finished with its outcome and final counters.
func (s *Store) FinishRun(ctx context.Context, runID, outcome string, completed, failed, tokens int) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE runs
		SET outcome = ?, completed = ?, failed = ?, tokens = ?, finished_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, outcome, completed, failed, tokens, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	var run Run
	var finished sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, mode, harness, outcome, completed, failed, tokens, started_at, finished_at
		FROM runs
		WHERE id = ?
	`, runID).Scan(&run.ID, &run.Mode, &run.Harness, &run.Outcome, &run.Completed, &run.Failed, &run.Tokens, &run.StartedAt, &finished)

	if err == sql.ErrNoRows {
		return Run{}, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query run: %w", err)
	}

	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return run, nil
}

// ListRuns returns runs newest first. A limit of zero or less returns
// every run (SQLite treats a negative LIMIT as unlimited).
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, harness, outcome, completed, failed, tokens, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		var finished sql.NullTime

		err := rows.Scan(&run.ID, &run.Mode, &run.Harness, &run.Outcome, &run.Completed, &run.Failed, &run.Tokens, &run.StartedAt, &finished)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			run.FinishedAt = finished.Time
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// LatestRun returns the most recently started run. The boolean is false
// when the ledger holds no runs yet.
func (s *Store) LatestRun(ctx context.Context) (Run, bool, error) {
	var run Run
	var finished sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, mode, harness, outcome, completed, failed, tokens, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`).Scan(&run.ID, &run.Mode, &run.Harness, &run.Outcome, &run.Completed, &run.Failed, &run.Tokens, &run.StartedAt, &finished)

	if err == sql.ErrNoRows {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("failed to query latest run: %w", err)
	}

	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return run, true, nil
}

// RecordAttempt appends an attempt row. The run must already be recorded;
// the foreign key rejects attempts against unknown runs.
func (s *Store) RecordAttempt(ctx context.Context, att Attempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (run_id, task_id, attempt, exit_code, signal, output, tokens, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, att.RunID, att.TaskID, att.Attempt, att.ExitCode, att.Signal, att.Output, att.Tokens, att.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// ListAttempts returns all attempts for a run in insertion order.
func (s *Store) ListAttempts(ctx context.Context, runID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, task_id, attempt, exit_code, signal, output, tokens, duration_ms, created_at
		FROM attempts
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	return collectAttempts(rows)
}

// TaskAttempts returns every attempt recorded for a task, across runs,
// in insertion order.
func (s *Store) TaskAttempts(ctx context.Context, taskID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, task_id, attempt, exit_code, signal, output, tokens, duration_ms, created_at
		FROM attempts
		WHERE task_id = ?
		ORDER BY id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task attempts: %w", err)
	}
	defer rows.Close()

	return collectAttempts(rows)
}

func collectAttempts(rows *sql.Rows) ([]Attempt, error) {
	attempts := []Attempt{}
	for rows.Next() {
		var att Attempt
		var ms int64

		err := rows.Scan(&att.ID, &att.RunID, &att.TaskID, &att.Attempt, &att.ExitCode, &att.Signal, &att.Output, &att.Tokens, &ms, &att.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		att.Duration = time.Duration(ms) * time.Millisecond
		attempts = append(attempts, att)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempts: %w", err)
	}

	return attempts, nil
}

// SaveSession stores the harness resume key for a task.
func (s *Store) SaveSession(ctx context.Context, taskID, sessionID, harnessType string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (task_id, session_id, harness, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(task_id) DO UPDATE SET
			session_id = excluded.session_id,
			harness = excluded.harness,
			updated_at = CURRENT_TIMESTAMP
	`, taskID, sessionID, harnessType)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession retrieves the resume key for a task. The boolean is false
// when no session has been recorded.
func (s *Store) GetSession(ctx context.Context, taskID string) (Session, bool, error) {
	var sess Session

	err := s.db.QueryRowContext(ctx, `
		SELECT task_id, session_id, harness, updated_at
		FROM sessions
		WHERE task_id = ?
	`, taskID).Scan(&sess.TaskID, &sess.SessionID, &sess.Harness, &sess.UpdatedAt)

	if err == sql.ErrNoRows {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("failed to query session: %w", err)
	}

	return sess, true, nil
}

// ClearSession removes the resume key for a task. Clearing an absent
// session is a no-op.
func (s *Store) ClearSession(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
