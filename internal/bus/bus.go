// Package bus is the in-process message bus between chat channels and the
// group queue: channels publish InboundMessage, the orchestrator loop
// consumes it; the queue (and scheduled tasks) publish OutboundMessage,
// channels deliver it.
package bus

import (
	"context"
	"log/slog"
)

// InboundMessage is one message a channel adapter observed, normalized to
// the shape the orchestrator loop and persistence layer share.
type InboundMessage struct {
	Channel    string
	ChatID     string
	SenderID   string
	SenderName string
	Text       string
	MessageID  string // channel-native ID, used for dedupe keying
}

// OutboundMessage is a request to deliver text through a chat channel,
// originating either from a live sandbox's messages/ IPC frame or from a
// scheduled task's configured target.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Text    string
}

// MessageBus fans inbound messages out to every registered consumer, in
// registration order, and dispatches outbound messages to channel senders
// registered via OnOutbound. Both directions are handled synchronously in
// the calling goroutine: a blocking inbound handler holds up the next
// handler and the next publish, and an outbound send error is logged and
// swallowed rather than retried (channel errors are not fatal — see the
// error taxonomy).
type MessageBus struct {
	onInbound  []func(context.Context, InboundMessage)
	onOutbound func(context.Context, OutboundMessage) error
}

// New creates an unwired MessageBus; call OnInbound/OnOutbound before
// publishing anything.
func New() *MessageBus {
	return &MessageBus{}
}

// OnInbound registers an additional handler for inbound messages. Handlers
// run in registration order; a panic in one is recovered and logged so it
// never suppresses the handlers registered after it.
func (b *MessageBus) OnInbound(fn func(context.Context, InboundMessage)) {
	b.onInbound = append(b.onInbound, fn)
}

// OnOutbound registers the single handler for outbound messages. Replaces
// any previously registered handler.
func (b *MessageBus) OnOutbound(fn func(context.Context, OutboundMessage) error) {
	b.onOutbound = fn
}

// PublishInbound delivers msg to every registered inbound handler in
// registration order. Each handler runs isolated from the others: a panic
// is recovered and logged, and the remaining handlers still run.
func (b *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) {
	if len(b.onInbound) == 0 {
		slog.Warn("bus: inbound message published with no handler registered", "channel", msg.Channel, "chat_id", msg.ChatID)
		return
	}
	for _, fn := range b.onInbound {
		b.runInboundHandler(ctx, fn, msg)
	}
}

func (b *MessageBus) runInboundHandler(ctx context.Context, fn func(context.Context, InboundMessage), msg InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("bus: inbound handler panicked", "channel", msg.Channel, "chat_id", msg.ChatID, "panic", r)
		}
	}()
	fn(ctx, msg)
}

// PublishOutbound delivers msg to the registered outbound handler. Errors
// are logged here, not returned, matching the error taxonomy's rule that
// channel send failures are logged and swallowed rather than propagated
// into cursor or queue state.
func (b *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) {
	if b.onOutbound == nil {
		slog.Warn("bus: outbound message published with no handler registered", "channel", msg.Channel, "chat_id", msg.ChatID)
		return
	}
	if err := b.onOutbound(ctx, msg); err != nil {
		slog.Error("bus: outbound send failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
	}
}
