package telegram

import (
	"strings"
	"testing"

	"github.com/nanoclaw/orchestrator/internal/store"
)

func TestTaskStatusIcon(t *testing.T) {
	cases := map[store.TaskStatus]string{
		store.TaskActive:   "🟢",
		store.TaskPaused:   "⏸",
		store.TaskCanceled: "⛔",
		store.TaskCompleted: "•",
	}
	for status, want := range cases {
		if got := taskStatusIcon(status); got != want {
			t.Fatalf("status %q: got %q, want %q", status, got, want)
		}
	}
}

func TestTruncateStrUnderLimit(t *testing.T) {
	if got := truncateStr("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncateStrOverLimitAppendsEllipsis(t *testing.T) {
	got := truncateStr("this is a long prompt", 7)
	if got != "this is…" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatTaskDetailIncludesCoreFields(t *testing.T) {
	task := &store.ScheduledTask{
		ID:            "task-1",
		Prompt:        "say hi",
		ScheduleKind:  store.ScheduleCron,
		ScheduleValue: "0 9 * * *",
		ContextMode:   store.ContextIsolated,
		Status:        store.TaskActive,
	}
	out := formatTaskDetail(task)
	if !strings.Contains(out, "task-1") || !strings.Contains(out, "say hi") || !strings.Contains(out, "0 9 * * *") {
		t.Fatalf("expected detail to include task fields, got:\n%s", out)
	}
}

func TestFormatTaskDetailOmitsNextRunWhenNil(t *testing.T) {
	task := &store.ScheduledTask{ID: "t", Prompt: "p", ScheduleKind: store.ScheduleOnce, ContextMode: store.ContextIsolated, Status: store.TaskActive}
	out := formatTaskDetail(task)
	if strings.Contains(out, "Next run:") {
		t.Fatalf("expected no Next run line when NextRunAt is nil, got:\n%s", out)
	}
}
