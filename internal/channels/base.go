package channels

import (
	"sync/atomic"

	"github.com/nanoclaw/orchestrator/internal/bus"
)

// BaseChannel holds the state every Channel implementation needs
// regardless of platform: its name, the shared bus, a running flag, and an
// optional sender allow-list. Platform channels embed it.
type BaseChannel struct {
	name      string
	msgBus    *bus.MessageBus
	allowFrom map[string]struct{}
	running   atomic.Bool
}

// NewBaseChannel creates a BaseChannel. allowFrom, if non-empty, restricts
// inbound senders to that set of IDs; an empty allowFrom permits everyone.
func NewBaseChannel(name string, msgBus *bus.MessageBus, allowFrom []string) *BaseChannel {
	b := &BaseChannel{name: name, msgBus: msgBus}
	if len(allowFrom) > 0 {
		b.allowFrom = make(map[string]struct{}, len(allowFrom))
		for _, id := range allowFrom {
			b.allowFrom[id] = struct{}{}
		}
	}
	return b
}

// Name returns the channel's identifier.
func (b *BaseChannel) Name() string { return b.name }

// Bus returns the shared message bus, for publishing inbound messages.
func (b *BaseChannel) Bus() *bus.MessageBus { return b.msgBus }

// IsAllowed reports whether senderID may interact with this channel. An
// empty allow-list permits every sender.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	_, ok := b.allowFrom[senderID]
	return ok
}

// SetRunning updates the channel's running flag.
func (b *BaseChannel) SetRunning(v bool) { b.running.Store(v) }

// IsRunning reports whether Start has completed successfully and Stop has
// not yet been called.
func (b *BaseChannel) IsRunning() bool { return b.running.Load() }
