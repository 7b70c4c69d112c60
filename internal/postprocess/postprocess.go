// Package postprocess cleans raw model output before it is stored as a
// translated unit.
package postprocess

import (
	"regexp"
	"strings"
)

// Rule rewrites text. Rules are applied in order.
type Rule func(string) string

// Cleaner applies a fixed list of rules and trims the result.
type Cleaner struct {
	rules []Rule
}

// New creates a Cleaner from rules.
func New(rules ...Rule) *Cleaner {
	return &Cleaner{rules: rules}
}

// Default returns a Cleaner for LLM output: reasoning blocks, echoed
// preambles and wrapping quotes are removed.
func Default() *Cleaner {
	return New(StripReasoning, StripPreamble, Unquote)
}

// With returns a copy of c with extra rules appended.
func (c *Cleaner) With(rules ...Rule) *Cleaner {
	all := make([]Rule, 0, len(c.rules)+len(rules))
	all = append(all, c.rules...)
	all = append(all, rules...)
	return &Cleaner{rules: all}
}

// Clean applies the rules to text.
func (c *Cleaner) Clean(text string) string {
	for _, rule := range c.rules {
		text = rule(text)
	}
	return strings.TrimSpace(text)
}

var defaultCleaner = Default()

// Clean applies the default rules.
func Clean(text string) string { return defaultCleaner.Clean(text) }

// RE2 has no backreferences, so every tag pair is spelled out.
var (
	reasoningRe = regexp.MustCompile(
		`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`)
	openReasoningRe = regexp.MustCompile(`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`)
)

// StripReasoning removes complete and truncated reasoning blocks.
func StripReasoning(text string) string {
	text = reasoningRe.ReplaceAllString(text, "")
	return strings.TrimSpace(openReasoningRe.ReplaceAllString(text, ""))
}

var preambleRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.!]?\s+`),
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the| your)? (?:refined |polished |german |translated )?(?:translation|text)(?: in \w+)?\s*:`),
	regexp.MustCompile(`(?i)^(?:the )?(?:refined |polished )?(?:translation|translated text)\s*:`),
}

// StripPreamble removes introductory phrases such as "Here is the
// translation:". Each pattern needs a trailing colon except the leading
// interjection, which is only removed when a preamble follows it.
func StripPreamble(text string) string {
	text = strings.TrimSpace(text)
	rest := text
	if loc := preambleRes[0].FindStringIndex(rest); loc != nil {
		rest = rest[loc[1]:]
	}
	for _, re := range preambleRes[1:] {
		if loc := re.FindStringIndex(rest); loc != nil {
			return strings.TrimSpace(rest[loc[1]:])
		}
	}
	return text
}

var quotePairs = map[rune]rune{
	'"':      '"',
	'\'':     '\'',
	'\u00AB': '\u00BB', // « »
	'\u201E': '\u201C', // „ “
	'\u201C': '\u201D', // “ ”
	'\u2018': '\u2019', // ‘ ’
}

// Unquote strips one pair of quotes wrapping the whole text.
func Unquote(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) < 2 {
		return text
	}
	if closing, ok := quotePairs[runes[0]]; ok && runes[len(runes)-1] == closing {
		return strings.TrimSpace(string(runes[1 : len(runes)-1]))
	}
	return text
}

// StripPrefix removes an echoed task prefix, compared case-insensitively.
func StripPrefix(prefix string) Rule {
	p := strings.ToLower(strings.TrimSpace(prefix))
	return func(text string) string {
		t := strings.TrimSpace(text)
		if p != "" && strings.HasPrefix(strings.ToLower(t), p) {
			return strings.TrimSpace(t[len(p):])
		}
		return text
	}
}

// SingleLine joins multi-line output with spaces so one input line yields
// exactly one output line.
func SingleLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
