// Package validator checks that a translation is in the expected target language.
package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/valpere/docpipe/internal/detector"
)

// MinLength is the minimum rune count required to attempt language detection.
// Shorter texts produce unreliable results and are accepted without validation.
const MinLength = 20

var (
	// ErrEmptyTranslation indicates a blank translation.
	ErrEmptyTranslation = errors.New("translation is empty")

	// ErrWrongLanguage indicates the translation is in another language.
	ErrWrongLanguage = errors.New("translation is in the wrong language")
)

// Validator checks that a translation is written in the expected target language.
type Validator struct {
	det *detector.Detector
}

// New creates a Validator backed by det. The detector is expensive to build;
// share it with other components.
func New(det *detector.Detector) *Validator {
	return &Validator{det: det}
}

// IsValid reports whether text appears to be written in targetLang.
//
// Short texts and texts whose language cannot be determined pass. When the
// detected language differs the error wraps ErrWrongLanguage and names both codes.
func (v *Validator) IsValid(text, targetLang string) (bool, error) {
	if targetLang == "" {
		return true, nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return false, ErrEmptyTranslation
	}

	if len([]rune(text)) < MinLength {
		return true, nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return true, nil
	}

	if !strings.EqualFold(detected, targetLang) {
		return false, fmt.Errorf("%w: expected %s, detected %s", ErrWrongLanguage, targetLang, detected)
	}
	return true, nil
}
