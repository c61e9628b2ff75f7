package sandbox

import (
	"strings"
	"testing"
)

func TestStripInternal(t *testing.T) {
	in := "before <internal>scratch reasoning</internal> after"
	got := stripInternal(in)
	want := "before  after"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestStripInternalMultiline(t *testing.T) {
	in := "a<internal>\nline one\nline two\n</internal>b"
	got := stripInternal(in)
	if got != "ab" {
		t.Fatalf("got %q, want %q", got, "ab")
	}
}

func TestStripInternalNoSpan(t *testing.T) {
	in := "nothing to strip here"
	if got := stripInternal(in); got != in {
		t.Fatalf("got %q, want unchanged %q", got, in)
	}
}

func TestScrubCredentialsOpenAIKey(t *testing.T) {
	in := "here is a key sk-abcdefghijklmnopqrstuvwxyz1234"
	got := ScrubCredentials(in)
	if strings.Contains(got, "sk-abc") {
		t.Fatalf("expected key to be redacted, got %q", got)
	}
	if !strings.Contains(got, "[REDACTED]") {
		t.Fatalf("expected redaction placeholder, got %q", got)
	}
}

func TestScrubCredentialsKeyValuePattern(t *testing.T) {
	in := "token: abcdef1234567890"
	got := ScrubCredentials(in)
	if !strings.Contains(got, "[REDACTED]") {
		t.Fatalf("expected token=value pair to be redacted, got %q", got)
	}
}

func TestScrubCredentialsLeavesPlainTextAlone(t *testing.T) {
	in := "container exited with status 1"
	if got := ScrubCredentials(in); got != in {
		t.Fatalf("expected plain stderr text unchanged, got %q", got)
	}
}
