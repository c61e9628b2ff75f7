package sandbox

import "regexp"

// internalSpanPattern matches <internal>...</internal> spans the agent may
// emit to carry scratch reasoning that should never reach a chat.
var internalSpanPattern = regexp.MustCompile(`(?s)<internal>.*?</internal>`)

// stripInternal removes every <internal>...</internal> span from a
// record's result text (success or error) before it is handed to onOutput.
func stripInternal(text string) string {
	return internalSpanPattern.ReplaceAllString(text, "")
}

// credentialPatterns catches secret-shaped substrings that should never
// reach structured logs, adapted from the orchestrator's own tool-output
// scrubbing for the sandbox's stderr logging path.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9-]{20,}`),
	regexp.MustCompile(`ghp_[a-zA-Z0-9]{36}`),
	regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|bearer)\s*[:=]\s*["']?\S{8,}["']?`),
}

const redactedPlaceholder = "[REDACTED]"

// ScrubCredentials replaces known credential patterns in text with
// [REDACTED] — used before a sandbox's stderr is ever logged.
func ScrubCredentials(text string) string {
	for _, pat := range credentialPatterns {
		text = pat.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}
