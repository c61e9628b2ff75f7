// Package telegram is the Telegram chat channel: a thin adapter from
// telego's long-polling update stream to bus.InboundMessage, and from
// bus.OutboundMessage back to a chunked, HTML-formatted send.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nanoclaw/orchestrator/internal/bus"
	"github.com/nanoclaw/orchestrator/internal/channels"
	"github.com/nanoclaw/orchestrator/internal/config"
	"github.com/nanoclaw/orchestrator/internal/store"
)

// telegramMaxMessageLen is Telegram's hard limit on a single message's text.
const telegramMaxMessageLen = 4096

// Channel connects to Telegram via the Bot API using long polling.
type Channel struct {
	*channels.BaseChannel
	bot    *telego.Bot
	store  *store.Store // optional: powers the /tasks command, nil if unset
	botID  int64
	cancel context.CancelFunc
}

// New creates a Telegram channel from config. st may be nil, in which case
// the /tasks command reports that task features are unavailable.
func New(cfg config.TelegramConfig, msgBus *bus.MessageBus, st *store.Store) (*Channel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram", msgBus, cfg.AllowFrom),
		bot:         bot,
		store:       st,
	}, nil
}

// Start begins long-polling for updates. It returns once the bot identity
// has been confirmed; updates are handled on a background goroutine until
// Stop is called.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram channel")

	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("fetch telegram bot identity: %w", err)
	}
	c.botID = me.ID

	pollCtx, cancel := context.WithCancel(context.Background())
	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("start telegram long polling: %w", err)
	}
	c.cancel = cancel

	go func() {
		for update := range updates {
			c.handleUpdate(pollCtx, update)
		}
	}()

	c.SetRunning(true)
	slog.Info("telegram channel connected", "username", me.Username, "id", me.ID)
	return nil
}

// Stop ends long polling.
func (c *Channel) Stop() error {
	slog.Info("stopping telegram channel")
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send delivers an outbound message to a Telegram chat, converting markdown
// to Telegram HTML and chunking at the 4096-character message limit.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram channel not running")
	}
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", msg.ChatID, err)
	}

	html := markdownToTelegramHTML(msg.Text)
	for _, chunk := range chunkHTML(html, telegramMaxMessageLen) {
		tgMsg := tu.Message(tu.ID(chatID), chunk)
		tgMsg.ParseMode = telego.ModeHTML
		if _, err := c.bot.SendMessage(ctx, tgMsg); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

// ChatName fetches a chat's current title (or first/last name for a DM)
// from the Bot API, for refresh_groups to re-sync a registered group's
// stored name.
func (c *Channel) ChatName(ctx context.Context, chatID string) (string, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	chat, err := c.bot.GetChat(ctx, &telego.GetChatParams{ChatID: tu.ID(id)})
	if err != nil {
		return "", fmt.Errorf("get telegram chat: %w", err)
	}
	if chat.Title != "" {
		return chat.Title, nil
	}
	return strings.TrimSpace(chat.FirstName + " " + chat.LastName), nil
}

// handleUpdate dispatches one telego.Update: a /tasks command, or else a
// plain message published onto the bus.
func (c *Channel) handleUpdate(ctx context.Context, update telego.Update) {
	if update.CallbackQuery != nil {
		c.handleCallbackQuery(ctx, update.CallbackQuery)
		return
	}
	if update.Message == nil {
		return
	}
	m := update.Message
	if m.From == nil || m.From.ID == c.botID || m.From.IsBot {
		return
	}
	senderID := strconv.FormatInt(m.From.ID, 10)
	if !c.IsAllowed(senderID) {
		slog.Debug("telegram message rejected by allowlist", "user_id", senderID)
		return
	}

	text := strings.TrimSpace(m.Text)
	switch {
	case text == "/tasks" || strings.HasPrefix(text, "/tasks@"):
		c.handleTasksList(ctx, m.Chat.ID)
		return
	case strings.HasPrefix(text, "/task_detail"):
		c.handleTaskDetail(ctx, m.Chat.ID, text)
		return
	}

	senderName := m.From.Username
	if senderName == "" {
		senderName = strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
	}

	c.Bus().PublishInbound(ctx, bus.InboundMessage{
		Channel:    c.Name(),
		ChatID:     strconv.FormatInt(m.Chat.ID, 10),
		SenderID:   senderID,
		SenderName: senderName,
		Text:       m.Text,
		MessageID:  strconv.Itoa(m.MessageID),
	})
}
