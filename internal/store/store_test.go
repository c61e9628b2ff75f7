package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "nanoclaw.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenAppliesMigrations(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.ListGroups(context.Background()); err != nil {
		t.Fatalf("expected registered_groups table to exist after migration, got: %v", err)
	}
}

func TestRegisterGroupAndLookup(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	g := RegisteredGroup{
		Folder:  "acme-hq",
		ChatID:  "12345",
		Channel: "telegram",
		Name:    "Acme HQ",
		IsMain:  true,
	}
	if err := s.RegisterGroup(ctx, g); err != nil {
		t.Fatalf("register group: %v", err)
	}

	byFolder, err := s.GetGroupByFolder(ctx, "acme-hq")
	if err != nil {
		t.Fatalf("get by folder: %v", err)
	}
	if byFolder.ChatID != "12345" || byFolder.Channel != "telegram" {
		t.Fatalf("unexpected group: %+v", byFolder)
	}

	byChat, err := s.GetGroupByChat(ctx, "12345", "telegram")
	if err != nil {
		t.Fatalf("get by chat: %v", err)
	}
	if byChat.Folder != "acme-hq" {
		t.Fatalf("expected folder acme-hq, got %q", byChat.Folder)
	}

	main, err := s.MainFolder(ctx)
	if err != nil {
		t.Fatalf("main folder: %v", err)
	}
	if main != "acme-hq" {
		t.Fatalf("expected acme-hq as main folder, got %q", main)
	}
}

func TestRegisterGroupRejectsInvalidFolder(t *testing.T) {
	s := openTestStore(t)
	err := s.RegisterGroup(context.Background(), RegisteredGroup{Folder: "not valid!"})
	if !errors.Is(err, ErrInvalidFolder) {
		t.Fatalf("expected ErrInvalidFolder, got %v", err)
	}
}

func TestRegisterGroupUpsertsOnConflict(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := RegisteredGroup{Folder: "acme-hq", ChatID: "1", Channel: "telegram", Name: "First"}
	if err := s.RegisterGroup(ctx, base); err != nil {
		t.Fatalf("register: %v", err)
	}
	base.Name = "Renamed"
	if err := s.RegisterGroup(ctx, base); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	got, err := s.GetGroupByFolder(ctx, "acme-hq")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Renamed" {
		t.Fatalf("expected upsert to rename, got %q", got.Name)
	}
}

func TestGetGroupByFolderNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetGroupByFolder(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertMessageAndMessagesAfter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if _, err := s.InsertMessage(ctx, Message{ChatID: "c1", Channel: "telegram", Text: "first", CreatedAt: base}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.InsertMessage(ctx, Message{ChatID: "c1", Channel: "telegram", Text: "second", CreatedAt: base.Add(time.Second)}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	msgs, err := s.MessagesAfter(ctx, "c1", "telegram", base)
	if err != nil {
		t.Fatalf("messages after: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "second" {
		t.Fatalf("expected only the message after the cursor, got %+v", msgs)
	}

	maxID, err := s.MaxMessageID(ctx)
	if err != nil {
		t.Fatalf("max id: %v", err)
	}
	if maxID != 2 {
		t.Fatalf("expected max id 2, got %d", maxID)
	}
}

func TestCreateTaskAndDueTasks(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	dueID, err := s.CreateTask(ctx, ScheduledTask{
		Folder: "acme-hq", Prompt: "say hi", ScheduleKind: ScheduleOnce,
		ContextMode: ContextIsolated, NextRunAt: &past,
	})
	if err != nil {
		t.Fatalf("create due task: %v", err)
	}
	if _, err := s.CreateTask(ctx, ScheduledTask{
		Folder: "acme-hq", Prompt: "say later", ScheduleKind: ScheduleOnce,
		ContextMode: ContextIsolated, NextRunAt: &future,
	}); err != nil {
		t.Fatalf("create future task: %v", err)
	}

	due, err := s.DueTasks(ctx, time.Now())
	if err != nil {
		t.Fatalf("due tasks: %v", err)
	}
	if len(due) != 1 || due[0].ID != dueID {
		t.Fatalf("expected exactly the past-due task, got %+v", due)
	}

	if err := s.SetTaskStatus(ctx, dueID, TaskCompleted); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, err := s.GetTask(ctx, dueID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != TaskCompleted {
		t.Fatalf("expected completed status, got %q", got.Status)
	}

	due, err = s.DueTasks(ctx, time.Now())
	if err != nil {
		t.Fatalf("due tasks after completion: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected completed task to drop out of due tasks, got %+v", due)
	}
}

func TestSetTaskStatusNotFound(t *testing.T) {
	s := openTestStore(t)
	err := s.SetTaskStatus(context.Background(), "missing-id", TaskPaused)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListTasksForFolder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := s.CreateTask(ctx, ScheduledTask{Folder: "a", Prompt: "p1", ScheduleKind: ScheduleOnce, ContextMode: ContextIsolated}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateTask(ctx, ScheduledTask{Folder: "b", Prompt: "p2", ScheduleKind: ScheduleOnce, ContextMode: ContextIsolated}); err != nil {
		t.Fatalf("create: %v", err)
	}

	tasks, err := s.ListTasksForFolder(ctx, "a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Folder != "a" {
		t.Fatalf("expected only folder a's task, got %+v", tasks)
	}
}
