// Package discord is the Discord chat channel: a thin adapter from
// discordgo's gateway events to bus.InboundMessage, and from
// bus.OutboundMessage back to a channel send.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/nanoclaw/orchestrator/internal/bus"
	"github.com/nanoclaw/orchestrator/internal/channels"
	"github.com/nanoclaw/orchestrator/internal/config"
)

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	config    config.DiscordConfig
	botUserID string
}

// New creates a Discord channel from config.
func New(cfg config.DiscordConfig, msgBus *bus.MessageBus) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", msgBus, cfg.AllowFrom),
		session:     session,
		config:      cfg,
	}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
// It returns once connected; message handling continues on discordgo's own
// goroutines until Stop is called.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord channel")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		_ = c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID
	c.SetRunning(true)
	slog.Info("discord channel connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop() error {
	slog.Info("stopping discord channel")
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers an outbound message to a Discord channel, chunking at
// Discord's 2000-character message limit.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord channel not running")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("empty chat id for discord send")
	}
	return c.sendChunked(msg.ChatID, msg.Text)
}

func (c *Channel) sendChunked(channelID, content string) error {
	const maxLen = 2000
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxLen {
			cutAt := maxLen
			if idx := lastIndexByte(content[:maxLen], '\n'); idx > maxLen/2 {
				cutAt = idx + 1
			}
			chunk = content[:cutAt]
			content = content[cutAt:]
		} else {
			content = ""
		}
		if _, err := c.session.ChannelMessageSend(channelID, chunk); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

// ChatName fetches a Discord channel's current name from the API, for
// refresh_groups to re-sync a registered group's stored name. Direct
// messages have no channel name, so it falls back to the recipient's
// username.
func (c *Channel) ChatName(_ context.Context, chatID string) (string, error) {
	ch, err := c.session.Channel(chatID)
	if err != nil {
		return "", fmt.Errorf("get discord channel: %w", err)
	}
	if ch.Name != "" {
		return ch.Name, nil
	}
	for _, r := range ch.Recipients {
		return r.Username, nil
	}
	return "", nil
}

// handleMessage processes an incoming Discord message and, if it passes the
// allow-list, publishes it onto the bus.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}
	if !c.IsAllowed(m.Author.ID) {
		slog.Debug("discord message rejected by allowlist", "user_id", m.Author.ID)
		return
	}

	text := m.Content
	for _, att := range m.Attachments {
		if text != "" {
			text += "\n"
		}
		text += fmt.Sprintf("[attachment: %s]", att.URL)
	}

	c.Bus().PublishInbound(context.Background(), bus.InboundMessage{
		Channel:    c.Name(),
		ChatID:     m.ChannelID,
		SenderID:   m.Author.ID,
		SenderName: m.Author.Username,
		Text:       text,
		MessageID:  m.ID,
	})
}

func lastIndexByte(s string, c byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == c {
			return i
		}
	}
	return -1
}
