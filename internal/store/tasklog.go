package store

import (
	"context"
	"fmt"
	"time"
)

// TaskRunStatus is the outcome of one scheduled-task execution attempt.
type TaskRunStatus string

const (
	TaskRunRunning TaskRunStatus = "running"
	TaskRunSuccess TaskRunStatus = "success"
	TaskRunError   TaskRunStatus = "error"
)

// TaskRunLogEntry is one append-only record of a scheduled task firing.
type TaskRunLogEntry struct {
	ID         int64         `db:"id"`
	TaskID     string        `db:"task_id"`
	StartedAt  time.Time     `db:"started_at"`
	FinishedAt *time.Time    `db:"finished_at"`
	Status     TaskRunStatus `db:"status"`
	Error      *string       `db:"error"`
	CreatedAt  time.Time     `db:"created_at"`
}

// BeginTaskRun records that a scheduled task has started executing and
// returns the log row's ID, used to close it out via FinishTaskRun.
func (s *Store) BeginTaskRun(ctx context.Context, taskID string, startedAt time.Time) (int64, error) {
	var id int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO task_run_log (task_id, started_at, status)
			VALUES (?, ?, 'running');
		`, taskID, startedAt)
		if err != nil {
			return fmt.Errorf("begin task run: %w", wrap(err))
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("read task run id: %w", wrap(err))
		}
		return nil
	})
	return id, err
}

// FinishTaskRun closes out a task run log entry with its outcome. errMsg is
// nil on success.
func (s *Store) FinishTaskRun(ctx context.Context, logID int64, finishedAt time.Time, status TaskRunStatus, errMsg *string) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE task_run_log SET finished_at = ?, status = ?, error = ? WHERE id = ?;
		`, finishedAt, status, errMsg, logID)
		if err != nil {
			return fmt.Errorf("finish task run: %w", wrap(err))
		}
		return nil
	})
}

// ListTaskRuns returns the most recent runs for a task, newest first.
func (s *Store) ListTaskRuns(ctx context.Context, taskID string, limit int) ([]TaskRunLogEntry, error) {
	var runs []TaskRunLogEntry
	err := s.db.SelectContext(ctx, &runs, `
		SELECT * FROM task_run_log WHERE task_id = ? ORDER BY id DESC LIMIT ?;
	`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("list task runs: %w", wrap(err))
	}
	return runs, nil
}
