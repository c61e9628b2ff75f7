package channels

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nanoclaw/orchestrator/internal/bus"
)

type fakeChannel struct {
	name string

	mu   sync.Mutex
	sent []bus.OutboundMessage
}

func (f *fakeChannel) Name() string                  { return f.name }
func (f *fakeChannel) Start(ctx context.Context) error { return nil }
func (f *fakeChannel) Stop() error                     { return nil }

func (f *fakeChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestManagerDispatchRoutesToNamedChannel(t *testing.T) {
	msgBus := bus.New()
	m := NewManager(msgBus)
	ch := &fakeChannel{name: "telegram"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, ch)

	waitUntil(t, func() bool { return m.Get("telegram") != nil })

	msgBus.PublishOutbound(context.Background(), bus.OutboundMessage{Channel: "telegram", ChatID: "1", Text: "hi"})

	waitUntil(t, func() bool { return ch.sentCount() == 1 })
}

func TestManagerDispatchUnknownChannelErrors(t *testing.T) {
	m := NewManager(bus.New())
	err := m.dispatch(context.Background(), bus.OutboundMessage{Channel: "nope", Text: "hi"})
	if err == nil {
		t.Fatal("expected an error dispatching to a channel that isn't running")
	}
}

func TestManagerLimiterForReusesSameLimiterPerChannel(t *testing.T) {
	m := NewManager(bus.New())
	l1 := m.limiterFor("telegram")
	l2 := m.limiterFor("telegram")
	if l1 != l2 {
		t.Fatal("expected the same limiter instance to be reused for a channel name")
	}
	l3 := m.limiterFor("discord")
	if l1 == l3 {
		t.Fatal("expected distinct limiters per channel name")
	}
}

func TestManagerStopAllCancelsAndClears(t *testing.T) {
	msgBus := bus.New()
	m := NewManager(msgBus)
	ch := &fakeChannel{name: "discord"}
	m.Start(context.Background(), ch)
	waitUntil(t, func() bool { return m.Get("discord") != nil })

	m.StopAll()
	if m.Get("discord") != nil {
		t.Fatal("expected channel to be cleared after StopAll")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
