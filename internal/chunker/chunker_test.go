package chunker_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/valpere/docpipe/internal/chunker"
)

func TestChunkShortText(t *testing.T) {
	chunks := chunker.Chunk("Hello there", 100)
	if len(chunks) != 1 || chunks[0] != "Hello there" {
		t.Errorf("unexpected chunks %q", chunks)
	}
}

func TestChunkUnlimited(t *testing.T) {
	text := strings.Repeat("word ", 500)
	if chunks := chunker.Chunk(text, 0); len(chunks) != 1 {
		t.Errorf("expected 1 chunk when maxChars=0, got %d", len(chunks))
	}
}

func TestChunkPrefersSentenceBoundary(t *testing.T) {
	text := "The cat sat. The dog ran far away."
	chunks := chunker.Chunk(text, 20)
	want := []string{"The cat sat.", "The dog ran far", "away."}
	if strings.Join(chunks, "|") != strings.Join(want, "|") {
		t.Errorf("Chunk() = %q, want %q", chunks, want)
	}
}

func TestChunkBoundaryAtLimit(t *testing.T) {
	chunks := chunker.Chunk("abcd efgh", 4)
	if strings.Join(chunks, "|") != "abcd|efgh" {
		t.Errorf("Chunk() = %q", chunks)
	}
}

func TestChunkHardCut(t *testing.T) {
	chunks := chunker.Chunk("abcdefghij", 4)
	if strings.Join(chunks, "|") != "abcd|efgh|ij" {
		t.Errorf("Chunk() = %q", chunks)
	}
}

func TestChunkRespectsRuneLimit(t *testing.T) {
	text := strings.Repeat("Größe über alles. ", 20)
	for _, c := range chunker.Chunk(text, 30) {
		if n := utf8.RuneCountInString(c); n > 30 {
			t.Errorf("chunk of %d runes exceeds limit: %q", n, c)
		}
	}
}

func TestTail(t *testing.T) {
	if got := chunker.Tail("one two three four", 2); got != "three four" {
		t.Errorf("Tail() = %q", got)
	}
	if got := chunker.Tail("  one  two ", 5); got != "one two" {
		t.Errorf("Tail() = %q", got)
	}
}
