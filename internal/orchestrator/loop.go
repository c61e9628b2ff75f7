// Package orchestrator implements the dual-cursor message ingestion loop:
// it scans the shared chat log for messages newer than the global ingest
// cursor, groups them by chat, decides which registered groups were
// triggered, and hands each triggered chat's missed-message window to the
// group queue — advancing that chat's own agent cursor only once the
// window has actually been handed off, and rolling it back if the ensuing
// run never produces a result.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/nanoclaw/orchestrator/internal/queue"
	"github.com/nanoclaw/orchestrator/internal/store"
)

// defaultMaxContextMessages bounds how much of a chat's missed window is
// replayed into a fresh agent run (MAX_CONTEXT_MESSAGES).
const defaultMaxContextMessages = 100

// Config carries the orchestrator loop's tunables.
type Config struct {
	PollInterval       time.Duration
	MaxContextMessages int
	AssistantName      string
}

// Loop owns the ingest cursor and drives every registered group's agent
// cursor forward. It holds no per-chat mutable state between ticks beyond
// what is persisted in the store, so a restart resumes exactly where the
// last successful tick left off.
type Loop struct {
	Store *store.Store
	Queue *queue.Manager
	cfg   Config

	triggers *triggerCache
}

// New builds a Loop ready to Recover and Run.
func New(st *store.Store, q *queue.Manager, cfg Config) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxContextMessages <= 0 {
		cfg.MaxContextMessages = defaultMaxContextMessages
	}
	return &Loop{
		Store:    st,
		Queue:    q,
		cfg:      cfg,
		triggers: newTriggerCache(cfg.AssistantName),
	}
}

// SetAssistantName updates the name substituted into trigger patterns
// containing the assistant-name placeholder.
func (l *Loop) SetAssistantName(name string) {
	l.triggers.SetAssistantName(name)
}

// Run ticks until ctx is canceled. Callers should invoke Recover once,
// before Run, to reprocess any chat a prior crash left behind.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// chatKey identifies one chat's conversation stream; (chat_id, channel)
// together are what registered_groups is keyed by.
type chatKey struct {
	chatID  string
	channel string
}

// tick performs one ingest pass: read everything newer than the global
// cursor, group it by chat, process each chat's batch, then advance the
// global cursor past the newest message observed. The global cursor is
// only ever advanced forward here — per-chat agent cursors are the ones
// that gate replay into a sandbox.
func (l *Loop) tick(ctx context.Context) {
	cursor, err := l.Store.IngestCursor(ctx)
	if err != nil {
		slog.Error("orchestrator: read ingest cursor failed", "error", err)
		return
	}

	msgs, err := l.Store.MessagesSince(ctx, cursor)
	if err != nil {
		slog.Error("orchestrator: read messages since cursor failed", "error", err)
		return
	}
	if len(msgs) == 0 {
		return
	}

	byChat := make(map[chatKey][]store.Message)
	latest := cursor
	for _, m := range msgs {
		key := chatKey{chatID: m.ChatID, channel: m.Channel}
		byChat[key] = append(byChat[key], m)
		if m.CreatedAt.After(latest) {
			latest = m.CreatedAt
		}
	}

	for key, batch := range byChat {
		l.processChat(ctx, key, batch)
	}

	if err := l.Store.SetIngestCursor(ctx, latest); err != nil {
		slog.Error("orchestrator: advance ingest cursor failed", "error", err)
	}
}

// processChat decides whether batch (this tick's new messages for one
// chat) should wake its bound group, and if so hands off the chat's full
// missed window.
func (l *Loop) processChat(ctx context.Context, key chatKey, batch []store.Message) {
	group, err := l.Store.GetGroupByChat(ctx, key.chatID, key.channel)
	if err != nil {
		if err != store.ErrNotFound {
			slog.Error("orchestrator: resolve group by chat failed", "chat_id", key.chatID, "error", err)
		}
		return
	}

	if group.RequiresTrigger && !group.IsMain {
		if !l.triggers.Match(group.TriggerPattern, texts(batch)) {
			return
		}
	}

	l.dispatchWindow(ctx, *group)
}

// dispatchWindow loads folder's missed window, tentatively advances its
// agent cursor, and hands the formatted window to the queue — piping it
// into an already-live sandbox when one exists, or enqueueing a fresh run
// otherwise.
func (l *Loop) dispatchWindow(ctx context.Context, group store.RegisteredGroup) {
	prevCursor, err := l.Store.AgentCursor(ctx, group.Folder)
	if err != nil {
		slog.Error("orchestrator: read agent cursor failed", "folder", group.Folder, "error", err)
		return
	}

	window, err := l.Store.MessagesAfter(ctx, group.ChatID, group.Channel, prevCursor)
	if err != nil {
		slog.Error("orchestrator: read missed window failed", "folder", group.Folder, "error", err)
		return
	}
	if len(window) == 0 {
		return
	}
	if len(window) > l.cfg.MaxContextMessages {
		window = window[len(window)-l.cfg.MaxContextMessages:]
	}

	newCursor := window[len(window)-1].CreatedAt
	if err := l.Store.SetAgentCursor(ctx, group.Folder, newCursor); err != nil {
		slog.Error("orchestrator: advance agent cursor failed", "folder", group.Folder, "error", err)
		return
	}

	prompt := FormatWindow(window)

	if l.Queue.SendMessage(group.Folder, prompt) {
		// Piped directly into a live sandbox. The IPC input channel gives
		// no completion signal for a piped message (only for the run that
		// consumes it), so there is nothing to roll back to here — a
		// failure surfaces on that run's own job instead.
		return
	}

	folder := group.Folder
	chatID := group.ChatID
	channel := group.Channel
	l.Queue.EnqueueMessageCheck(folder, func() (string, string) {
		// Re-query at actual run time so anything that arrived between
		// enqueue and dequeue rides along in the same run.
		w, err := l.Store.MessagesAfter(ctx, chatID, channel, prevCursor)
		if err != nil || len(w) == 0 {
			return "", chatID
		}
		if len(w) > l.cfg.MaxContextMessages {
			w = w[len(w)-l.cfg.MaxContextMessages:]
		}
		return FormatWindow(w), chatID
	}, func(runErr error) {
		if runErr == nil {
			return
		}
		slog.Warn("orchestrator: run failed, rolling back agent cursor", "folder", folder, "error", runErr)
		if err := l.Store.SetAgentCursor(ctx, folder, prevCursor); err != nil {
			slog.Error("orchestrator: rollback agent cursor failed", "folder", folder, "error", err)
		}
	})
}

// Recover reprocesses every registered group whose bound chat has messages
// past its last agent cursor, for the crash-restart case: the ingest
// cursor may already be past those messages (they were seen before the
// crash) but the corresponding agent run never completed or never started.
func (l *Loop) Recover(ctx context.Context) {
	groups, err := l.Store.ListGroups(ctx)
	if err != nil {
		slog.Error("orchestrator: recover: list groups failed", "error", err)
		return
	}
	cursors, err := l.Store.AllAgentCursors(ctx)
	if err != nil {
		slog.Error("orchestrator: recover: list agent cursors failed", "error", err)
		return
	}

	for _, group := range groups {
		prevCursor := cursors[group.Folder]
		window, err := l.Store.MessagesAfter(ctx, group.ChatID, group.Channel, prevCursor)
		if err != nil {
			slog.Error("orchestrator: recover: read missed window failed", "folder", group.Folder, "error", err)
			continue
		}
		if len(window) == 0 {
			continue
		}
		if group.RequiresTrigger && !group.IsMain && !l.triggers.Match(group.TriggerPattern, texts(window)) {
			continue
		}
		slog.Info("orchestrator: recover: replaying missed window", "folder", group.Folder, "messages", len(window))
		l.dispatchWindow(ctx, group)
	}
}
