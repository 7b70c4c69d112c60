// Package placeholder shields markup inside a unit from translation by
// swapping it for numbered markers and putting it back afterwards.
package placeholder

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMarkersLost indicates a translation dropped one or more markers.
var ErrMarkersLost = errors.New("placeholder markers lost")

// Patterns are matched in order; earlier patterns win on overlap.
var patterns = []*regexp.Regexp{
	regexp.MustCompile("(?s)```.*?```"),      // fenced code
	regexp.MustCompile("`[^`\n]+`"),          // inline code
	regexp.MustCompile(`https?://[^\s<>"]+`), // URLs
	regexp.MustCompile(`<[^<>\n]+>`),         // HTML tags
	regexp.MustCompile(`\{\{[^{}]*\}\}`),     // template variables
}

var markerRe = regexp.MustCompile(`\[PH(\d+)\]`)

// Set holds the originals replaced by Protect.
type Set struct {
	originals []string
}

// Protect replaces markup in text with [PH0], [PH1], ... and returns the
// masked text with the captured originals.
func Protect(text string) (string, *Set) {
	s := &Set{}
	for _, re := range patterns {
		text = re.ReplaceAllStringFunc(text, func(match string) string {
			s.originals = append(s.originals, match)
			return fmt.Sprintf("[PH%d]", len(s.originals)-1)
		})
	}
	return text, s
}

// Len returns the number of markers.
func (s *Set) Len() int { return len(s.originals) }

// Empty reports whether nothing was masked.
func (s *Set) Empty() bool { return len(s.originals) == 0 }

// Restore puts the originals back. Markers the translation dropped are
// reported through ErrMarkersLost; the restored text is returned anyway.
// Unknown marker numbers are left as they are.
func (s *Set) Restore(text string) (string, error) {
	seen := make([]bool, len(s.originals))
	out := markerRe.ReplaceAllStringFunc(text, func(m string) string {
		idx, err := strconv.Atoi(markerRe.FindStringSubmatch(m)[1])
		if err != nil || idx >= len(s.originals) {
			return m
		}
		seen[idx] = true
		return s.originals[idx]
	})

	var missing []string
	for i, ok := range seen {
		if !ok {
			missing = append(missing, fmt.Sprintf("[PH%d]", i))
		}
	}
	if len(missing) > 0 {
		return out, fmt.Errorf("%w: %s", ErrMarkersLost, strings.Join(missing, ", "))
	}
	return out, nil
}

// Hint is appended to LLM instructions when a unit carries markers.
const Hint = "Keep every [PHn] marker exactly as written; do not translate, move or remove them."
