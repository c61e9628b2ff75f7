package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nanoclaw/orchestrator/internal/store"
)

// maxTasksInList bounds how many scheduled tasks /tasks lists inline before
// telling the caller to narrow their request.
const maxTasksInList = 30

// taskStatusIcon returns a short icon for a scheduled task's status.
func taskStatusIcon(status store.TaskStatus) string {
	switch status {
	case store.TaskActive:
		return "🟢"
	case store.TaskPaused:
		return "⏸"
	case store.TaskCanceled:
		return "⛔"
	default:
		return "•"
	}
}

// truncateStr truncates a string to maxLen runes, appending "…" if truncated.
func truncateStr(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}

// handleTasksList handles the /tasks command — lists scheduled tasks for the
// folder registered to this chat.
func (c *Channel) handleTasksList(ctx context.Context, chatID int64) {
	send := func(text string) {
		msg := tu.Message(tu.ID(chatID), text)
		if _, err := c.bot.SendMessage(ctx, msg); err != nil {
			slog.Warn("tasks command: send failed", "error", err)
		}
	}

	if c.store == nil {
		send("Scheduled tasks are not available.")
		return
	}

	group, err := c.store.GetGroupByChat(ctx, fmt.Sprintf("%d", chatID), c.Name())
	if err != nil {
		slog.Warn("tasks command: group lookup failed", "error", err)
		send("This chat is not registered to a folder. Ask the agent to register it first.")
		return
	}

	tasks, err := c.store.ListTasksForFolder(ctx, group.Folder)
	if err != nil {
		slog.Warn("tasks command: list failed", "error", err)
		send("Failed to list scheduled tasks. Please try again.")
		return
	}
	if len(tasks) == 0 {
		send(fmt.Sprintf("No scheduled tasks for folder %q.", group.Folder))
		return
	}

	total := len(tasks)
	if total > maxTasksInList {
		tasks = tasks[:maxTasksInList]
	}

	var sb strings.Builder
	if total > maxTasksInList {
		sb.WriteString(fmt.Sprintf("Tasks for %q (showing %d of %d):\n\n", group.Folder, maxTasksInList, total))
	} else {
		sb.WriteString(fmt.Sprintf("Tasks for %q (%d):\n\n", group.Folder, total))
	}
	for i, t := range tasks {
		sb.WriteString(fmt.Sprintf("%d. %s %s (%s)\n", i+1, taskStatusIcon(t.Status), truncateStr(t.Prompt, 60), t.ScheduleKind))
	}
	sb.WriteString("\nTap a button below for full detail.")

	var rows [][]telego.InlineKeyboardButton
	for i, t := range tasks {
		label := fmt.Sprintf("%d. %s %s", i+1, taskStatusIcon(t.Status), truncateStr(t.Prompt, 35))
		rows = append(rows, []telego.InlineKeyboardButton{
			{Text: label, CallbackData: "td:" + t.ID},
		})
	}

	msg := tu.Message(tu.ID(chatID), sb.String())
	if len(rows) > 0 {
		msg.ReplyMarkup = &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
	}
	if _, err := c.bot.SendMessage(ctx, msg); err != nil {
		slog.Warn("tasks command: send failed", "error", err)
	}
}

// handleTaskDetail handles the /task_detail <id> command.
func (c *Channel) handleTaskDetail(ctx context.Context, chatID int64, text string) {
	send := func(t string) {
		for _, chunk := range chunkHTML(t, telegramMaxMessageLen) {
			msg := tu.Message(tu.ID(chatID), chunk)
			if _, err := c.bot.SendMessage(ctx, msg); err != nil {
				slog.Warn("task_detail command: send failed", "error", err)
			}
		}
	}

	parts := strings.SplitN(text, " ", 2)
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		send("Usage: /task_detail <task_id>")
		return
	}
	taskID := strings.TrimSpace(parts[1])
	c.sendTaskDetail(ctx, taskID, send)
}

// handleCallbackQuery handles inline keyboard button presses, currently
// only the "td:<task_id>" detail buttons sent by handleTasksList.
func (c *Channel) handleCallbackQuery(ctx context.Context, query *telego.CallbackQuery) {
	_ = c.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{CallbackQueryID: query.ID})

	if !strings.HasPrefix(query.Data, "td:") {
		return
	}
	taskID := strings.TrimPrefix(query.Data, "td:")
	chatID := query.Message.GetChat().ID

	send := func(text string) {
		for _, chunk := range chunkHTML(text, telegramMaxMessageLen) {
			msg := tu.Message(tu.ID(chatID), chunk)
			if _, err := c.bot.SendMessage(ctx, msg); err != nil {
				slog.Warn("task detail callback: send failed", "error", err)
			}
		}
	}
	c.sendTaskDetail(ctx, taskID, send)
}

func (c *Channel) sendTaskDetail(ctx context.Context, taskID string, send func(string)) {
	if c.store == nil {
		send("Scheduled tasks are not available.")
		return
	}
	t, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		send(fmt.Sprintf("Task %q not found.", taskID))
		return
	}
	send(formatTaskDetail(t))
}

// formatTaskDetail formats a single scheduled task for display.
func formatTaskDetail(t *store.ScheduledTask) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Task: %s\n", t.ID))
	sb.WriteString(fmt.Sprintf("Status: %s %s\n", taskStatusIcon(t.Status), t.Status))
	sb.WriteString(fmt.Sprintf("Schedule: %s %q\n", t.ScheduleKind, t.ScheduleValue))
	sb.WriteString(fmt.Sprintf("Context: %s\n", t.ContextMode))
	if t.NextRunAt != nil {
		sb.WriteString(fmt.Sprintf("Next run: %s\n", t.NextRunAt.Format("2006-01-02 15:04 MST")))
	}
	sb.WriteString(fmt.Sprintf("\nPrompt:\n%s\n", t.Prompt))
	return sb.String()
}
