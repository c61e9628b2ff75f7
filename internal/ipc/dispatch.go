package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nanoclaw/orchestrator/internal/bus"
	"github.com/nanoclaw/orchestrator/internal/channels"
	"github.com/nanoclaw/orchestrator/internal/store"
	"github.com/nanoclaw/orchestrator/pkg/cronutil"
	"github.com/nanoclaw/orchestrator/pkg/protocol"
)

// Dispatcher routes claimed IPC frames to the store or the bus. It holds no per-folder state of its own — every method call is
// self-contained, matching the "no state read or written except by its
// owner" discipline the group queue actors follow.
type Dispatcher struct {
	Store      *store.Store
	Bus        *bus.MessageBus
	Channels   *channels.Manager
	MainFolder string
	Timezone   string
}

// DispatchMessage handles one frame claimed from a folder's messages/
// directory: a request to deliver text back through a chat channel.
func (d *Dispatcher) DispatchMessage(ctx context.Context, sourceFolder string, data []byte) error {
	var frame protocol.SendMessageFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return fmt.Errorf("ipc: unmarshal send_message frame: %w", err)
	}
	group, err := d.Store.GetGroupByFolder(ctx, sourceFolder)
	if err != nil {
		return fmt.Errorf("ipc: resolve folder %q: %w", sourceFolder, err)
	}
	d.Bus.PublishOutbound(ctx, bus.OutboundMessage{
		Channel: group.Channel,
		ChatID:  frame.TargetChatID,
		Text:    frame.Text,
	})
	return nil
}

// DispatchTask handles one frame claimed from a folder's tasks/ directory:
// a scheduling command or (main-folder only) a group-admin command.
func (d *Dispatcher) DispatchTask(ctx context.Context, sourceFolder string, data []byte) error {
	var frame protocol.TaskCommandFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return fmt.Errorf("ipc: unmarshal task frame: %w", err)
	}

	taskFolder := sourceFolder
	if frame.TaskID != "" {
		t, err := d.Store.GetTask(ctx, frame.TaskID)
		if err == nil {
			taskFolder = t.Folder
		}
	}
	if err := Authorize(sourceFolder, d.MainFolder, frame, taskFolder); err != nil {
		return err
	}

	switch frame.Type {
	case protocol.FrameScheduleTask:
		return d.scheduleTask(ctx, sourceFolder, frame)
	case protocol.FramePauseTask:
		return d.Store.SetTaskStatus(ctx, frame.TaskID, store.TaskPaused)
	case protocol.FrameResumeTask:
		return d.resumeTask(ctx, frame.TaskID)
	case protocol.FrameCancelTask:
		return d.Store.SetTaskStatus(ctx, frame.TaskID, store.TaskCanceled)
	case protocol.FrameRegisterGroup:
		return d.registerGroup(ctx, frame)
	case protocol.FrameRefreshGroups:
		return d.refreshGroups(ctx)
	default:
		return fmt.Errorf("ipc: unknown task frame type %q", frame.Type)
	}
}

func (d *Dispatcher) scheduleTask(ctx context.Context, folder string, frame protocol.TaskCommandFrame) error {
	kind := store.ScheduleKind(frame.ScheduleKind)
	mode := store.ContextMode(frame.ContextMode)
	if mode == "" {
		mode = store.ContextIsolated
	}

	next, err := cronutil.NextOccurrence(cronutil.Kind(kind), frame.ScheduleValue, time.Now(), d.Timezone)
	if err != nil {
		return fmt.Errorf("ipc: compute initial next_run: %w", err)
	}

	_, err = d.Store.CreateTask(ctx, store.ScheduledTask{
		Folder:        folder,
		Prompt:        frame.Prompt,
		ScheduleKind:  kind,
		ScheduleValue: frame.ScheduleValue,
		ContextMode:   mode,
		TargetChatID:  frame.TargetChatID,
		NextRunAt:     next,
	})
	return err
}

func (d *Dispatcher) resumeTask(ctx context.Context, taskID string) error {
	t, err := d.Store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	next, err := cronutil.NextOccurrence(cronutil.Kind(t.ScheduleKind), t.ScheduleValue, time.Now(), d.Timezone)
	if err != nil {
		return fmt.Errorf("ipc: compute resume next_run: %w", err)
	}
	if err := d.Store.SetTaskNextRun(ctx, taskID, next); err != nil {
		return err
	}
	return d.Store.SetTaskStatus(ctx, taskID, store.TaskActive)
}

func (d *Dispatcher) registerGroup(ctx context.Context, frame protocol.TaskCommandFrame) error {
	if err := store.ValidateFolder(frame.Folder); err != nil {
		return err
	}
	return d.Store.RegisterGroup(ctx, store.RegisteredGroup{
		Folder:          frame.Folder,
		ChatID:          frame.ChatID,
		Channel:         frame.Channel,
		Name:            frame.Name,
		RequiresTrigger: frame.RequiresTrigger,
		TriggerPattern:  frame.TriggerPattern,
	})
}

// refreshGroups re-reads every registered group's chat metadata from its
// channel and re-syncs registered_groups.name. A channel that isn't
// running, or doesn't implement channels.ChatNamer, is skipped rather than
// failing the whole refresh — one unreachable channel shouldn't block the
// others from refreshing.
func (d *Dispatcher) refreshGroups(ctx context.Context) error {
	groups, err := d.Store.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("ipc: refresh_groups: list groups: %w", err)
	}
	for _, g := range groups {
		ch := d.Channels.Get(g.Channel)
		if ch == nil {
			continue
		}
		namer, ok := ch.(channels.ChatNamer)
		if !ok {
			continue
		}
		name, err := namer.ChatName(ctx, g.ChatID)
		if err != nil {
			slog.Warn("ipc: refresh_groups: chat name lookup failed", "folder", g.Folder, "channel", g.Channel, "error", err)
			continue
		}
		if name == "" || name == g.Name {
			continue
		}
		if err := d.Store.UpdateGroupName(ctx, g.Folder, name); err != nil {
			return fmt.Errorf("ipc: refresh_groups: update group %q: %w", g.Folder, err)
		}
	}
	return nil
}
