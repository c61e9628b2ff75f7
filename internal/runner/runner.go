// Package runner adapts the sandbox.Runner and the store/bus into the
// queue.RunFunc shape the group queue calls: resolve routing state once,
// return a closure capturing it.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nanoclaw/orchestrator/internal/bus"
	"github.com/nanoclaw/orchestrator/internal/queue"
	"github.com/nanoclaw/orchestrator/internal/sandbox"
	"github.com/nanoclaw/orchestrator/internal/store"
)

// Config carries the sandbox-launch settings shared by every folder.
type Config struct {
	Image            string
	ContainerTimeout time.Duration
	AssistantName    string
	Secrets          map[string]string
}

// New builds the queue.RunFunc wired to st (group/session lookups), msgBus
// (publishing agent output back to the originating chat), and sbRunner
// (launching the actual container).
func New(st *store.Store, msgBus *bus.MessageBus, sbRunner *sandbox.Runner, cfg Config) queue.RunFunc {
	return func(job queue.Job) (*sandbox.Handle, error) {
		ctx := context.Background()

		group, err := st.GetGroupByFolder(ctx, job.Folder)
		if err != nil {
			return nil, fmt.Errorf("runner: resolve folder %q: %w", job.Folder, err)
		}

		sessionID := ""
		if !job.IsScheduledTask || job.ContextMode == store.ContextGroup {
			sessionID, err = st.SessionID(ctx, job.Folder)
			if err != nil && err != store.ErrNotFound {
				return nil, fmt.Errorf("runner: read session id: %w", err)
			}
		} else if err := st.ClearSessionID(ctx, job.Folder); err != nil {
			slog.Warn("runner: clear session id failed", "folder", job.Folder, "error", err)
		}

		req := sandbox.RunRequest{
			Folder:          job.Folder,
			ChatID:          job.TargetChatID,
			Prompt:          job.Prompt,
			SessionID:       sessionID,
			IsMain:          group.IsMain,
			IsScheduledTask: job.IsScheduledTask,
			AssistantName:   cfg.AssistantName,
			Secrets:         cfg.Secrets,
			Image:           cfg.Image,
			ContainerConfig: group.DecodeContainerConfig(),
			Timeout:         cfg.ContainerTimeout,
		}

		targetChatID := job.TargetChatID
		if targetChatID == "" {
			targetChatID = group.ChatID
		}
		channel := group.Channel

		onOutput := func(text string) {
			msgBus.PublishOutbound(ctx, bus.OutboundMessage{
				Channel: channel,
				ChatID:  targetChatID,
				Text:    text,
			})
		}
		onSessionID := func(newSessionID string) {
			if err := st.SetSessionID(ctx, job.Folder, newSessionID); err != nil {
				slog.Error("runner: persist session id failed", "folder", job.Folder, "error", err)
			}
		}

		return sbRunner.Start(ctx, req, onOutput, onSessionID)
	}
}
