package whatsapp

import "testing"

func TestChunkTextUnderLimit(t *testing.T) {
	chunks := chunkText("short", 100)
	if len(chunks) != 1 || chunks[0] != "short" {
		t.Fatalf("expected a single unsplit chunk, got %v", chunks)
	}
}

func TestChunkTextSplitsAtNewlineNearLimit(t *testing.T) {
	text := "0123456789\nabcdefghij"
	chunks := chunkText(text, 15)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %v", chunks)
	}
	if chunks[0] != "0123456789\n" {
		t.Fatalf("expected the first chunk to end at the newline, got %q", chunks[0])
	}
	if chunks[1] != "abcdefghij" {
		t.Fatalf("expected the remainder in the second chunk, got %q", chunks[1])
	}
}

func TestChunkTextHardSplitsWithoutNearbyNewline(t *testing.T) {
	text := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	chunks := chunkText(text, 10)
	for _, c := range chunks {
		if len(c) > 10 {
			t.Fatalf("chunk exceeds maxLen: %q", c)
		}
	}
	joined := ""
	for _, c := range chunks {
		joined += c
	}
	if joined != text {
		t.Fatalf("expected chunks to reconstruct the original text, got %q", joined)
	}
}
