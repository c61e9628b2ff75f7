// Package scheduler ticks on a fixed interval, finds scheduled tasks that
// have come due, and hands each to the group queue as a task run —
// computing the task's next occurrence once that run completes.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/nanoclaw/orchestrator/internal/queue"
	"github.com/nanoclaw/orchestrator/internal/store"
	"github.com/nanoclaw/orchestrator/internal/tracing"
)

// Scheduler owns the periodic due-task scan. It holds no per-folder state
// of its own — enqueue dedupe by task id is delegated to the group queue
// actor, which already serializes all access to a folder's pending work.
type Scheduler struct {
	Store    *store.Store
	Queue    *queue.Manager
	Interval time.Duration
	Timezone string
	Tracer   trace.Tracer // defaults to a no-op tracer when nil

	mu       sync.Mutex
	inFlight map[string]bool
}

// New builds a Scheduler. interval defaults to 60s if zero.
func New(st *store.Store, q *queue.Manager, interval time.Duration, timezone string) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if timezone == "" {
		timezone = "UTC"
	}
	return &Scheduler{
		Store: st, Queue: q, Interval: interval, Timezone: timezone,
		Tracer:   nooptrace.NewTracerProvider().Tracer("nanoclaw"),
		inFlight: make(map[string]bool),
	}
}

// Run ticks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, s.Tracer, "scheduler.tick")
	defer span.End()

	due, err := s.Store.DueTasks(ctx, time.Now())
	if err != nil {
		slog.Error("scheduler: query due tasks failed", "error", err)
		return
	}
	for _, t := range due {
		s.dispatch(ctx, t)
	}
}

// dispatch enqueues one due task, skipping it if it's already in flight —
// the map here is just an early, best-effort filter; the group queue
// actor's own dedupe (keyed by task id) is what actually enforces
// at-most-once-in-flight per task.
func (s *Scheduler) dispatch(ctx context.Context, t store.ScheduledTask) {
	_, span := tracing.StartSpan(ctx, s.Tracer, "scheduler.dispatch",
		tracing.AttrTaskID.String(t.ID), tracing.AttrFolder.String(t.Folder))
	defer span.End()

	s.mu.Lock()
	if s.inFlight[t.ID] {
		s.mu.Unlock()
		return
	}
	s.inFlight[t.ID] = true
	s.mu.Unlock()

	startedAt := time.Now()
	logID, err := s.Store.BeginTaskRun(ctx, t.ID, startedAt)
	if err != nil {
		slog.Error("scheduler: begin task run log failed", "task_id", t.ID, "error", err)
	}

	s.Queue.EnqueueTask(t.Folder, t.ID, t.Prompt, t.ContextMode, t.TargetChatID, func(runErr error) {
		s.finish(ctx, t, logID, startedAt, runErr)
	})
}

func (s *Scheduler) finish(ctx context.Context, t store.ScheduledTask, logID int64, startedAt time.Time, runErr error) {
	s.mu.Lock()
	delete(s.inFlight, t.ID)
	s.mu.Unlock()

	status := store.TaskRunSuccess
	var errMsg *string
	if runErr != nil {
		status = store.TaskRunError
		msg := runErr.Error()
		errMsg = &msg
	}
	if logID != 0 {
		if err := s.Store.FinishTaskRun(ctx, logID, time.Now(), status, errMsg); err != nil {
			slog.Error("scheduler: finish task run log failed", "task_id", t.ID, "error", err)
		}
	}

	next, err := NextOccurrence(t.ScheduleKind, t.ScheduleValue, time.Now(), s.Timezone)
	if err != nil {
		slog.Error("scheduler: compute next run failed", "task_id", t.ID, "error", err)
		return
	}
	if next == nil {
		if err := s.Store.SetTaskStatus(ctx, t.ID, store.TaskCompleted); err != nil {
			slog.Error("scheduler: mark task completed failed", "task_id", t.ID, "error", err)
		}
		return
	}
	if err := s.Store.SetTaskNextRun(ctx, t.ID, next); err != nil {
		slog.Error("scheduler: set next run failed", "task_id", t.ID, "error", err)
	}
}
