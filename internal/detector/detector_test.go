package detector

import (
	"errors"
	"testing"
)

func TestDetector_Detect(t *testing.T) {
	d, err := New("en", "de", "fr", "uk")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name     string
		text     string
		wantCode string
		wantName string
		wantOK   bool
	}{
		{name: "empty text", text: "", wantOK: false},
		{name: "blank text", text: "   ", wantOK: false},
		{name: "english text", text: "Hello, this is a test in English.", wantCode: "en", wantName: "English", wantOK: true},
		{name: "german text", text: "Hallo, das ist ein Test auf Deutsch.", wantCode: "de", wantName: "German", wantOK: true},
		{name: "french text", text: "Bonjour, ceci est un test en français.", wantCode: "fr", wantName: "French", wantOK: true},
		{name: "ukrainian text", text: "Привіт, це тест українською мовою.", wantCode: "uk", wantName: "Ukrainian", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.Detect(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("Detect() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Code != tt.wantCode || got.Name != tt.wantName {
				t.Errorf("Detect() = %+v, want %s/%s", got, tt.wantCode, tt.wantName)
			}
			if got.Confidence <= 0 || got.Confidence > 1 {
				t.Errorf("confidence out of range: %v", got.Confidence)
			}
		})
	}
}

func TestDetector_DetectISO(t *testing.T) {
	d, err := New("en", "de")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	code, ok := d.DetectISO("Das ist ein ziemlich langer deutscher Satz.")
	if !ok || code != "de" {
		t.Errorf("DetectISO() = %q, %v", code, ok)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("en"); !errors.Is(err, ErrTooFewLanguages) {
		t.Errorf("expected ErrTooFewLanguages, got %v", err)
	}
	if _, err := New("en", "EN"); !errors.Is(err, ErrTooFewLanguages) {
		t.Errorf("duplicates should not count, got %v", err)
	}
	if _, err := New("en", "xx"); !errors.Is(err, ErrUnknownLanguage) {
		t.Errorf("expected ErrUnknownLanguage, got %v", err)
	}
}

func TestDetector_Languages(t *testing.T) {
	d, err := New("DE", "en")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	langs := d.Languages()
	if len(langs) != 2 || langs[0] != "de" || langs[1] != "en" {
		t.Errorf("Languages() = %v", langs)
	}
}
