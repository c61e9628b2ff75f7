// Package protocol defines the wire contracts shared between the
// orchestrator and the sandboxed agent process: the stdin payload, the
// framed stdout records, and the IPC JSON frame shapes. Nothing in this
// package depends on the orchestrator's internals, so it can be vendored
// into the sandbox image independently.
package protocol

// Output framing markers. The sandbox writes these on their own lines,
// bracketing a single JSON object. Anything between the markers that does
// not parse as JSON is a fatal Sandbox-Output error for the reader.
const (
	OutputStartMarker = "---NANOCLAW_OUTPUT_START---"
	OutputEndMarker   = "---NANOCLAW_OUTPUT_END---"
)

// CloseSentinel is the exact filename that signals a sandbox's IPC input
// loop to exit at its next poll.
const CloseSentinel = "_close"

// StdinPayload is the single JSON object written to the sandbox's stdin
// before the orchestrator closes it (or keeps streaming, for the handful
// of runtimes that support it — see DESIGN.md open question).
type StdinPayload struct {
	Prompt           string            `json:"prompt"`
	SessionID        string            `json:"session_id,omitempty"`
	Folder           string            `json:"folder"`
	ChatID           string            `json:"chat_id"`
	IsMain           bool              `json:"is_main"`
	IsScheduledTask  bool              `json:"is_scheduled_task,omitempty"`
	AssistantName    string            `json:"assistant_name,omitempty"`
	Secrets          map[string]string `json:"secrets,omitempty"`
}

// OutputStatus is the status field of a framed stdout record.
type OutputStatus string

const (
	StatusSuccess OutputStatus = "success"
	StatusError   OutputStatus = "error"
)

// OutputRecord is a single framed JSON record emitted between the output
// markers. Result is nil for a bare session-update marker.
type OutputRecord struct {
	Status       OutputStatus `json:"status"`
	Result       *string      `json:"result"`
	NewSessionID string       `json:"new_session_id,omitempty"`
	Error        string       `json:"error,omitempty"`
}
