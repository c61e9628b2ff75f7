package orchestrator

import (
	"strings"
	"time"

	"github.com/nanoclaw/orchestrator/internal/store"
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// FormatWindow renders a chat's missed-message window as the agent's
// prompt: one <message sender="…" time="…">…</message> per entry, oldest
// first, with attribute and text content escaped.
func FormatWindow(msgs []store.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(`<message sender="`)
		b.WriteString(xmlEscaper.Replace(m.SenderName))
		b.WriteString(`" time="`)
		b.WriteString(xmlEscaper.Replace(m.CreatedAt.UTC().Format(time.RFC3339)))
		b.WriteString(`">`)
		b.WriteString(xmlEscaper.Replace(m.Text))
		b.WriteString("</message>\n")
	}
	return b.String()
}

// texts extracts the raw text of each message, for trigger matching against
// the newly-ingested batch rather than the (possibly longer) missed window.
func texts(msgs []store.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}
