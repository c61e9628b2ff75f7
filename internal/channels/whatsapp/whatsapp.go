// Package whatsapp is the WhatsApp chat channel: an adapter from
// whatsmeow's event stream to bus.InboundMessage, and from
// bus.OutboundMessage back to a chunked WhatsApp send. Session state lives
// in its own modernc.org/sqlite-backed device store, kept separate from the
// orchestrator's own database so re-pairing never touches chat history.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/nanoclaw/orchestrator/internal/bus"
	"github.com/nanoclaw/orchestrator/internal/channels"
)

// slogAdapter bridges whatsmeow's own logging interface to log/slog.
type slogAdapter struct{ module string }

func (l slogAdapter) Errorf(msg string, args ...interface{}) {
	slog.Error(fmt.Sprintf(msg, args...), "module", l.module)
}
func (l slogAdapter) Warnf(msg string, args ...interface{}) {
	slog.Warn(fmt.Sprintf(msg, args...), "module", l.module)
}
func (l slogAdapter) Infof(msg string, args ...interface{}) {
	slog.Info(fmt.Sprintf(msg, args...), "module", l.module)
}
func (l slogAdapter) Debugf(msg string, args ...interface{}) {
	slog.Debug(fmt.Sprintf(msg, args...), "module", l.module)
}
func (l slogAdapter) Sub(module string) waLog.Logger { return slogAdapter{module: module} }

// Channel connects to WhatsApp via whatsmeow's multi-device protocol.
type Channel struct {
	*channels.BaseChannel
	dbPath     string
	client     *whatsmeow.Client
	typingMu   sync.Mutex
	typingStop map[string]chan struct{}
}

// New creates a WhatsApp channel. dbPath is the whatsmeow device store
// database; it must already hold a paired device (see onboard.go) before
// Start is called.
func New(dbPath string, allowFrom []string, msgBus *bus.MessageBus) *Channel {
	return &Channel{
		BaseChannel: channels.NewBaseChannel("whatsapp", msgBus, allowFrom),
		dbPath:      dbPath,
		typingStop:  make(map[string]chan struct{}),
	}
}

// Start connects the paired device and begins receiving events. It returns
// once the connection handshake completes; events are handled via
// whatsmeow's own goroutines until Stop is called.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel")

	if err := os.MkdirAll(filepath.Dir(c.dbPath), 0o700); err != nil {
		return fmt.Errorf("create whatsapp store directory: %w", err)
	}
	container, err := sqlstore.New(ctx, "sqlite", "file:"+c.dbPath+"?_pragma=foreign_keys(on)", slogAdapter{module: "store"})
	if err != nil {
		return fmt.Errorf("open whatsapp device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("get whatsapp device: %w", err)
	}

	client := whatsmeow.NewClient(device, slogAdapter{module: "client"})
	if client.Store.ID == nil {
		return fmt.Errorf("whatsapp device not paired — run the onboard command first")
	}
	client.AddEventHandler(c.handleEvent)

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect whatsapp: %w", err)
	}
	c.client = client
	c.SetRunning(true)
	slog.Info("whatsapp channel connected", "user", client.Store.ID.User)

	go func() {
		<-ctx.Done()
		c.stopAllTyping()
		client.Disconnect()
	}()
	return nil
}

// Stop disconnects the WhatsApp client.
func (c *Channel) Stop() error {
	slog.Info("stopping whatsapp channel")
	c.SetRunning(false)
	if c.client != nil {
		c.client.Disconnect()
	}
	return nil
}

// Send delivers an outbound message to a WhatsApp chat, chunking at a
// conservative length well under WhatsApp's own limit.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("whatsapp channel not running")
	}
	recipient, err := types.ParseJID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("invalid whatsapp chat id %q: %w", msg.ChatID, err)
	}
	c.stopTyping(msg.ChatID)

	for _, chunk := range chunkText(msg.Text, 4096) {
		body := chunk
		if _, err := c.client.SendMessage(ctx, recipient, &waProto.Message{Conversation: &body}); err != nil {
			return fmt.Errorf("send whatsapp message: %w", err)
		}
	}
	return nil
}

// ChatName fetches a chat's current display name, for refresh_groups to
// re-sync a registered group's stored name: the group subject for a group
// JID, or the saved contact name for a direct message.
func (c *Channel) ChatName(ctx context.Context, chatID string) (string, error) {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return "", fmt.Errorf("invalid whatsapp chat id %q: %w", chatID, err)
	}
	if jid.Server == types.GroupServer {
		info, err := c.client.GetGroupInfo(jid)
		if err != nil {
			return "", fmt.Errorf("get whatsapp group info: %w", err)
		}
		return info.Name, nil
	}
	contact, err := c.client.Store.Contacts.GetContact(ctx, jid)
	if err != nil {
		return "", fmt.Errorf("get whatsapp contact: %w", err)
	}
	if contact.FullName != "" {
		return contact.FullName, nil
	}
	return contact.PushName, nil
}

func (c *Channel) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		if err := c.client.SendPresence(context.Background(), types.PresenceAvailable); err != nil {
			slog.Warn("whatsapp: failed to send available presence", "error", err)
		}
	case *events.Message:
		c.handleMessage(v)
	}
}

func (c *Channel) handleMessage(msg *events.Message) {
	if msg.Info.IsFromMe {
		return
	}
	senderID := msg.Info.Sender.User
	if !c.IsAllowed(senderID) {
		slog.Debug("whatsapp message rejected by allowlist", "user_id", senderID)
		return
	}

	text := ""
	switch {
	case msg.Message.GetConversation() != "":
		text = msg.Message.GetConversation()
	case msg.Message.GetExtendedTextMessage().GetText() != "":
		text = msg.Message.GetExtendedTextMessage().GetText()
	}
	if caption := msg.Message.GetImageMessage().GetCaption(); caption != "" {
		text = caption
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	_ = c.client.MarkRead(context.Background(), []types.MessageID{msg.Info.ID}, msg.Info.Timestamp, msg.Info.Chat, msg.Info.Sender)
	c.startTyping(msg.Info.Chat)

	c.Bus().PublishInbound(context.Background(), bus.InboundMessage{
		Channel:    c.Name(),
		ChatID:     msg.Info.Chat.String(),
		SenderID:   senderID,
		SenderName: msg.Info.PushName,
		Text:       text,
		MessageID:  msg.Info.ID,
	})
}

// startTyping begins (or resets) a composing presence for chatID, stopping
// automatically after 5 minutes or when stopTyping/stopAllTyping is called.
func (c *Channel) startTyping(jid types.JID) {
	key := jid.String()
	c.typingMu.Lock()
	if stop, ok := c.typingStop[key]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	c.typingStop[key] = stop
	c.typingMu.Unlock()

	go func() {
		_ = c.client.SendChatPresence(context.Background(), jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
		ticker := time.NewTicker(8 * time.Second)
		defer ticker.Stop()
		timeout := time.NewTimer(5 * time.Minute)
		defer timeout.Stop()
		for {
			select {
			case <-stop:
				_ = c.client.SendChatPresence(context.Background(), jid, types.ChatPresencePaused, types.ChatPresenceMediaText)
				return
			case <-timeout.C:
				return
			case <-ticker.C:
				_ = c.client.SendChatPresence(context.Background(), jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
			}
		}
	}()
}

func (c *Channel) stopTyping(chatID string) {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	if stop, ok := c.typingStop[chatID]; ok {
		close(stop)
		delete(c.typingStop, chatID)
	}
}

func (c *Channel) stopAllTyping() {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	for _, stop := range c.typingStop {
		close(stop)
	}
	c.typingStop = make(map[string]chan struct{})
}

func chunkText(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var chunks []string
	remaining := text
	for len(remaining) > 0 {
		if len(remaining) <= maxLen {
			chunks = append(chunks, remaining)
			break
		}
		cutAt := maxLen
		if idx := strings.LastIndex(remaining[:cutAt], "\n"); idx > maxLen/2 {
			cutAt = idx + 1
		}
		chunks = append(chunks, remaining[:cutAt])
		remaining = remaining[cutAt:]
	}
	return chunks
}
