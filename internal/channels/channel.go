// Package channels is the chat-platform boundary: each supported platform
// (Telegram, Discord, WhatsApp) implements Channel and is driven uniformly
// by Manager, which owns start/retry/shutdown for all of them.
package channels

import "context"

// Channel is one chat platform integration. Implementations publish
// observed messages onto the shared bus.MessageBus and register themselves
// as the outbound sender for their own Name().
type Channel interface {
	// Name returns the channel identifier stored alongside chat_id in the
	// store (e.g. "telegram", "discord", "whatsapp").
	Name() string

	// Start connects to the platform and begins listening for messages. It
	// returns once the connection is confirmed live; message handling
	// continues on the platform client's own goroutines until Stop is
	// called. Manager runs Start in its own goroutine and retries it with
	// backoff if it returns an error.
	Start(ctx context.Context) error

	// Stop releases any connection held by the channel.
	Stop() error
}

// ChatNamer is implemented by channels that can look up a chat's current
// display name from the platform, used by refresh_groups to re-sync
// registered_groups.name without requiring the chat to be re-registered.
type ChatNamer interface {
	ChatName(ctx context.Context, chatID string) (string, error)
}
