// Package detector identifies the language of a text with lingua-go.
package detector

import (
	"errors"
	"fmt"
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

var (
	// ErrTooFewLanguages indicates fewer than two candidate languages.
	ErrTooFewLanguages = errors.New("at least two languages are required")

	// ErrUnknownLanguage indicates an unrecognised ISO 639-1 code.
	ErrUnknownLanguage = errors.New("unknown language code")
)

// Detection is the most likely language of a text.
type Detection struct {
	// Code is the lowercase ISO 639-1 code.
	Code string

	// Name is the English language name, e.g. "German".
	Name string

	// Confidence is in [0, 1].
	Confidence float64
}

// Detector wraps a lingua LanguageDetector. Building one is expensive;
// create it once and share it.
type Detector struct {
	detector lingua.LanguageDetector
	codes    []string
}

// New creates a detector restricted to the given ISO 639-1 codes, or over
// every supported language when none are given.
func New(codes ...string) (*Detector, error) {
	builder := lingua.NewLanguageDetectorBuilder()
	if len(codes) == 0 {
		return &Detector{detector: builder.FromAllLanguages().Build()}, nil
	}

	isos := make([]lingua.IsoCode639_1, 0, len(codes))
	seen := make(map[lingua.IsoCode639_1]bool, len(codes))
	for _, code := range codes {
		iso := lingua.GetIsoCode639_1FromValue(strings.ToUpper(strings.TrimSpace(code)))
		if iso == lingua.UnknownIsoCode639_1 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
		}
		if !seen[iso] {
			seen[iso] = true
			isos = append(isos, iso)
		}
	}
	if len(isos) < 2 {
		return nil, ErrTooFewLanguages
	}

	normalized := make([]string, len(isos))
	for i, iso := range isos {
		normalized[i] = strings.ToLower(iso.String())
	}
	return &Detector{
		detector: builder.FromIsoCodes639_1(isos...).Build(),
		codes:    normalized,
	}, nil
}

// Languages returns the candidate codes, or nil for all languages.
func (d *Detector) Languages() []string { return d.codes }

// Detect returns the most likely language of text. ok is false for empty or
// ambiguous text.
func (d *Detector) Detect(text string) (Detection, bool) {
	if strings.TrimSpace(text) == "" {
		return Detection{}, false
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return Detection{}, false
	}
	return Detection{
		Code:       strings.ToLower(lang.IsoCode639_1().String()),
		Name:       lang.String(),
		Confidence: d.detector.ComputeLanguageConfidence(text, lang),
	}, true
}

// DetectISO returns only the ISO 639-1 code of the detected language.
func (d *Detector) DetectISO(text string) (string, bool) {
	det, ok := d.Detect(text)
	return det.Code, ok
}
