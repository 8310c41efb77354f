package chunker

import (
	"strings"
	"testing"
)

func TestChunk_ShortTextReturnsSingleChunk(t *testing.T) {
	out := Chunk("Hello there.", 400)
	if len(out) != 1 || out[0] != "Hello there." {
		t.Fatalf("expected single unchanged chunk, got %v", out)
	}
}

func TestChunk_EmptyTextReturnsNoChunks(t *testing.T) {
	if out := Chunk("   ", 400); out != nil {
		t.Fatalf("expected nil for blank input, got %v", out)
	}
}

func TestChunk_RespectsMaxChars(t *testing.T) {
	text := strings.Repeat("This is a sentence. ", 50)
	out := Chunk(text, 100)
	if len(out) < 2 {
		t.Fatalf("expected multiple chunks for long text, got %d", len(out))
	}
	for i, c := range out {
		if len(c) > 100 {
			t.Fatalf("chunk %d exceeds max length: %q (%d chars)", i, c, len(c))
		}
	}
}

func TestChunk_DoesNotDropWords(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog. It was a bright cold day in April."
	out := Chunk(text, 30)
	joined := strings.Join(out, " ")
	for _, word := range strings.Fields(text) {
		if !strings.Contains(joined, strings.TrimRight(word, ".")) {
			t.Fatalf("lost word %q across chunk boundaries: %v", word, out)
		}
	}
}

func TestChunk_EveryChunkEndsInTerminator(t *testing.T) {
	text := strings.Repeat("this fragment has no terminal punctuation ", 30)
	out := Chunk(text, 80)
	if len(out) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(out))
	}
	for i, c := range out {
		last := c[len(c)-1]
		if last != '.' && last != '?' && last != '!' {
			t.Fatalf("chunk %d does not end in terminal punctuation: %q", i, c)
		}
	}
}

func TestChunk_AlreadyTerminatedChunkNotDoubled(t *testing.T) {
	out := Chunk("Hello there.", 400)
	if len(out) != 1 || out[0] != "Hello there." {
		t.Fatalf("expected terminator left untouched, got %v", out)
	}
}

func TestChunk_OverlongWordEmittedWhole(t *testing.T) {
	longWord := strings.Repeat("a", 50)
	out := Chunk(longWord+" short.", 10)
	found := false
	for _, c := range out {
		if strings.Contains(c, longWord) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected overlong word preserved intact, got %v", out)
	}
}
