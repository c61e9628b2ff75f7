package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nanoclaw/orchestrator/internal/bus"
)

// outboundRateLimit caps sends per channel platform, well under every
// supported platform's own throttling (Telegram: ~30/s global, Discord:
// 5/2s per channel, WhatsApp: no hard documented cap but bursts trigger
// soft blocks) — a shared conservative default rather than one tuned per
// platform.
const outboundRateLimit = 20 // messages/sec
const outboundBurst = 20

// Manager owns the lifecycle of every enabled chat channel: it starts them,
// retries a failed start with exponential backoff in the background rather
// than failing the whole process, and routes outbound sends to the channel
// named in each bus.OutboundMessage.
type Manager struct {
	msgBus *bus.MessageBus

	mu       sync.RWMutex
	channels map[string]Channel
	cancels  map[string]context.CancelFunc

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// NewManager creates a Manager and wires it as msgBus's outbound handler.
func NewManager(msgBus *bus.MessageBus) *Manager {
	m := &Manager{
		msgBus:   msgBus,
		channels: make(map[string]Channel),
		cancels:  make(map[string]context.CancelFunc),
		limiters: make(map[string]*rate.Limiter),
	}
	msgBus.OnOutbound(m.dispatch)
	return m
}

// dispatch routes an outbound message to the channel named in it, blocking
// until that channel's own rate limiter admits the send.
func (m *Manager) dispatch(ctx context.Context, msg bus.OutboundMessage) error {
	m.mu.RLock()
	ch, ok := m.channels[msg.Channel]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("channel %q not running", msg.Channel)
	}
	sender, ok := ch.(interface {
		Send(context.Context, bus.OutboundMessage) error
	})
	if !ok {
		return fmt.Errorf("channel %q does not implement Send", msg.Channel)
	}
	if err := m.limiterFor(msg.Channel).Wait(ctx); err != nil {
		return fmt.Errorf("channel %q: rate limiter wait: %w", msg.Channel, err)
	}
	return sender.Send(ctx, msg)
}

// limiterFor returns the rate limiter for a channel name, creating it on
// first use. Kept on its own mutex, independent of the channels map lock.
func (m *Manager) limiterFor(name string) *rate.Limiter {
	m.limitersMu.Lock()
	defer m.limitersMu.Unlock()
	l, ok := m.limiters[name]
	if !ok {
		l = rate.NewLimiter(rate.Limit(outboundRateLimit), outboundBurst)
		m.limiters[name] = l
	}
	return l
}

// Start launches ch in the background. If its initial Start call fails,
// Manager retries with exponential backoff (5s, 10s, ... capped at 5m)
// until it succeeds or ctx is canceled; a channel that cannot connect never
// blocks the rest of the orchestrator from starting.
func (m *Manager) Start(ctx context.Context, ch Channel) {
	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancels[ch.Name()] = cancel
	m.mu.Unlock()

	go m.runWithRetry(runCtx, ch)
}

func (m *Manager) runWithRetry(ctx context.Context, ch Channel) {
	backoff := 5 * time.Second
	const maxBackoff = 5 * time.Minute
	attempt := 1

	for {
		if err := ch.Start(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("channel start failed, retrying", "channel", ch.Name(), "attempt", attempt, "next_retry", backoff, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			attempt++
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		// Start returned nil: the channel is connected and live. Register
		// it so dispatch can route to it; StopAll removes it again.
		m.mu.Lock()
		m.channels[ch.Name()] = ch
		m.mu.Unlock()
		slog.Info("channel running", "channel", ch.Name())
		return
	}
}

// StopAll cancels every running channel and waits for Stop to return.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, cancel := range m.cancels {
		cancel()
		if ch, ok := m.channels[name]; ok {
			if err := ch.Stop(); err != nil {
				slog.Error("channel stop failed", "channel", name, "error", err)
			}
		}
	}
	m.channels = make(map[string]Channel)
	m.cancels = make(map[string]context.CancelFunc)
}

// Get returns the running channel with the given name, or nil.
func (m *Manager) Get(name string) Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[name]
}
