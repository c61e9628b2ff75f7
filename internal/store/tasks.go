package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScheduleKind is the recurrence model a ScheduledTask uses to compute its
// next run.
type ScheduleKind string

const (
	ScheduleCron     ScheduleKind = "cron"
	ScheduleInterval ScheduleKind = "interval"
	ScheduleOnce     ScheduleKind = "once"
)

// ContextMode controls whether a scheduled run reuses the folder's live
// agent session (group) or starts with no prior session (isolated).
type ContextMode string

const (
	ContextGroup    ContextMode = "group"
	ContextIsolated ContextMode = "isolated"
)

// TaskStatus is the lifecycle state of a ScheduledTask.
type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskPaused    TaskStatus = "paused"
	TaskCanceled  TaskStatus = "canceled"
	TaskCompleted TaskStatus = "completed"
)

// ScheduledTask is a recurring or one-shot prompt a folder's agent asked the
// scheduler to run on its behalf.
type ScheduledTask struct {
	ID            string       `db:"id"`
	Folder        string       `db:"folder"`
	Prompt        string       `db:"prompt"`
	ScheduleKind  ScheduleKind `db:"schedule_kind"`
	ScheduleValue string       `db:"schedule_value"`
	ContextMode   ContextMode  `db:"context_mode"`
	TargetChatID  string       `db:"target_chat_id"`
	Status        TaskStatus   `db:"status"`
	NextRunAt     *time.Time   `db:"next_run_at"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

// CreateTask inserts a new scheduled task and returns its generated ID.
func (s *Store) CreateTask(ctx context.Context, t ScheduledTask) (string, error) {
	t.ID = uuid.NewString()
	if t.Status == "" {
		t.Status = TaskActive
	}
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO scheduled_tasks (id, folder, prompt, schedule_kind, schedule_value, context_mode, target_chat_id, status, next_run_at)
			VALUES (:id, :folder, :prompt, :schedule_kind, :schedule_value, :context_mode, :target_chat_id, :status, :next_run_at);
		`, t)
		if err != nil {
			return fmt.Errorf("create task: %w", wrap(err))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

// GetTask returns the task with the given ID, or ErrNotFound.
func (s *Store) GetTask(ctx context.Context, id string) (*ScheduledTask, error) {
	var t ScheduledTask
	err := s.db.GetContext(ctx, &t, `SELECT * FROM scheduled_tasks WHERE id = ?;`, id)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", wrap(err))
	}
	return &t, nil
}

// ListTasksForFolder returns every task belonging to folder, newest first.
func (s *Store) ListTasksForFolder(ctx context.Context, folder string) ([]ScheduledTask, error) {
	var tasks []ScheduledTask
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT * FROM scheduled_tasks WHERE folder = ? ORDER BY created_at DESC;
	`, folder)
	if err != nil {
		return nil, fmt.Errorf("list tasks for folder: %w", wrap(err))
	}
	return tasks, nil
}

// DueTasks returns every active task whose next_run_at is at or before now,
// ordered by next_run_at ascending then id ascending — the scheduler's
// tie-break for tasks that land on the exact same tick.
func (s *Store) DueTasks(ctx context.Context, now time.Time) ([]ScheduledTask, error) {
	var tasks []ScheduledTask
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT * FROM scheduled_tasks
		WHERE status = 'active' AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at ASC, id ASC;
	`, now)
	if err != nil {
		return nil, fmt.Errorf("due tasks: %w", wrap(err))
	}
	return tasks, nil
}

// SetTaskNextRun updates a task's next_run_at, e.g. after the scheduler
// computes the following cron occurrence or marks a "once" task consumed
// (nil).
func (s *Store) SetTaskNextRun(ctx context.Context, id string, next *time.Time) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE scheduled_tasks SET next_run_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?;
		`, next, id)
		if err != nil {
			return fmt.Errorf("set task next run: %w", wrap(err))
		}
		return nil
	})
}

// SetTaskStatus transitions a task's status (pause/resume/cancel).
func (s *Store) SetTaskStatus(ctx context.Context, id string, status TaskStatus) error {
	return retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE scheduled_tasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?;
		`, status, id)
		if err != nil {
			return fmt.Errorf("set task status: %w", wrap(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("task status rows affected: %w", wrap(err))
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}
