// Package chunker splits over-long units into pieces a translation backend
// accepts, preferring sentence and word boundaries.
package chunker

import (
	"strings"
	"unicode"
)

// DefaultTailWords is the context size returned by Tail when none is given.
const DefaultTailWords = 25

// Chunk splits text into pieces of at most maxChars runes. It cuts after
// the last sentence terminator that is followed by a space, else at the last
// space, else mid-word. Pieces are trimmed; joining them with a single space
// restores the text up to whitespace. maxChars <= 0 disables splitting.
func Chunk(text string, maxChars int) []string {
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return []string{text}
	}

	var chunks []string
	for len(runes) > maxChars {
		cut := splitPoint(runes[:maxChars+1], maxChars)
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			chunks = append(chunks, piece)
		}
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	if piece := strings.TrimSpace(string(runes)); piece != "" {
		chunks = append(chunks, piece)
	}
	return chunks
}

// splitPoint returns how many runes of window to take. window holds one
// rune beyond the limit so a boundary right at the limit is visible.
func splitPoint(window []rune, limit int) int {
	for i := limit - 1; i > 0; i-- {
		switch window[i] {
		case '.', '!', '?', '。', '！', '？':
			if unicode.IsSpace(window[i+1]) {
				return i + 1
			}
		}
	}
	for i := limit; i > 0; i-- {
		if unicode.IsSpace(window[i]) {
			return i
		}
	}
	return limit
}

// Tail returns the last n words of text, for use as preceding context.
// n <= 0 means DefaultTailWords.
func Tail(text string, n int) string {
	if n <= 0 {
		n = DefaultTailWords
	}
	words := strings.Fields(text)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}
