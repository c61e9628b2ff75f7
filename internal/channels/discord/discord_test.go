package discord

import (
	"context"
	"testing"

	"github.com/nanoclaw/orchestrator/internal/bus"
	"github.com/nanoclaw/orchestrator/internal/channels"
)

func TestLastIndexByteFound(t *testing.T) {
	if idx := lastIndexByte("abc\ndef", '\n'); idx != 3 {
		t.Fatalf("expected index 3, got %d", idx)
	}
}

func TestLastIndexByteNotFound(t *testing.T) {
	if idx := lastIndexByte("abcdef", '\n'); idx != -1 {
		t.Fatalf("expected -1, got %d", idx)
	}
}

func TestLastIndexByteReturnsLastOccurrence(t *testing.T) {
	if idx := lastIndexByte("a\nb\nc", '\n'); idx != 3 {
		t.Fatalf("expected the last newline at index 3, got %d", idx)
	}
}

func TestSendRejectsWhenNotRunning(t *testing.T) {
	c := &Channel{BaseChannel: channels.NewBaseChannel("discord", bus.New(), nil)}
	err := c.Send(context.Background(), bus.OutboundMessage{ChatID: "123", Text: "hi"})
	if err == nil {
		t.Fatal("expected an error sending through a channel that isn't running")
	}
}
