package orchestrator

import (
	"strings"
	"testing"
	"time"

	"github.com/nanoclaw/orchestrator/internal/store"
)

func TestFormatWindowRendersOneLinePerMessage(t *testing.T) {
	msgs := []store.Message{
		{SenderName: "Alice", Text: "hello", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{SenderName: "Bob", Text: "hi there", CreatedAt: time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC)},
	}
	out := FormatWindow(msgs)
	if strings.Count(out, "<message ") != 2 {
		t.Fatalf("expected 2 <message> tags, got:\n%s", out)
	}
	if !strings.Contains(out, `sender="Alice"`) || !strings.Contains(out, `sender="Bob"`) {
		t.Fatalf("expected both senders present, got:\n%s", out)
	}
	if !strings.Contains(out, "2026-01-01T00:00:00Z") {
		t.Fatalf("expected RFC3339 UTC timestamp, got:\n%s", out)
	}
}

func TestFormatWindowEscapesXML(t *testing.T) {
	msgs := []store.Message{
		{SenderName: `A&B <"'>`, Text: `<script>alert("x")</script>`, CreatedAt: time.Now()},
	}
	out := FormatWindow(msgs)
	if strings.Contains(out, "<script>") {
		t.Fatalf("expected text to be escaped, got:\n%s", out)
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Fatalf("expected escaped script tag, got:\n%s", out)
	}
	if strings.Contains(out, `sender="A&B`) {
		t.Fatalf("expected sender attribute to be escaped, got:\n%s", out)
	}
}

func TestFormatWindowEmpty(t *testing.T) {
	if out := FormatWindow(nil); out != "" {
		t.Fatalf("expected empty string for no messages, got %q", out)
	}
}

func TestTextsExtractsRawText(t *testing.T) {
	msgs := []store.Message{
		{Text: "first"},
		{Text: "second"},
	}
	got := texts(msgs)
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("unexpected texts: %v", got)
	}
}
