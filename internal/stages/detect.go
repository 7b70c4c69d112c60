package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/valpere/docpipe/internal/detector"
	"github.com/valpere/docpipe/internal/document"
	"github.com/valpere/docpipe/internal/pipeline"
)

const DetectName = "detect"

// ErrUnexpectedLanguage indicates a document in a language other than the
// expected one.
var ErrUnexpectedLanguage = errors.New("unexpected document language")

type detectConfig struct {
	Languages     []string `mapstructure:"languages" validate:"min=2"`
	Expect        string   `mapstructure:"expect"`
	MinConfidence float64  `mapstructure:"min_confidence" validate:"gte=0,lte=1"`
}

// Detect records each document's language and confidence. It shares its
// detector through Resources so later stages can validate output with it.
type Detect struct {
	cfg      detectConfig
	detector *detector.Detector
}

func NewDetect() *Detect { return &Detect{} }

func (d *Detect) Name() string { return DetectName }

func (d *Detect) DefaultConfig() pipeline.Config {
	return pipeline.Config{
		"languages":      "en,de,fr,es,uk",
		"expect":         "",
		"min_confidence": 0.0,
	}
}

func (d *Detect) Initialize(_ context.Context, res *pipeline.Resources, cfg pipeline.Config) error {
	if err := cfg.Decode(d.Name(), &d.cfg); err != nil {
		return err
	}
	det, err := detector.New(d.cfg.Languages...)
	if err != nil {
		return pipeline.NewConfigurationError(d.Name(), "languages", fmt.Errorf("%w: %w", pipeline.ErrInvalidOption, err))
	}
	d.detector = det
	pipeline.Provide(res, DetectorKey, det)
	return nil
}

func (d *Detect) Process(_ context.Context, doc *document.Document) error {
	det, ok := d.detector.Detect(doc.Content())
	if !ok || det.Confidence < d.cfg.MinConfidence {
		if d.cfg.Expect != "" {
			return fmt.Errorf("%w: could not identify language, expected %s", ErrUnexpectedLanguage, d.cfg.Expect)
		}
		return nil
	}

	document.Set(doc, document.KeyLanguage, det.Code)
	document.Set(doc, document.KeyLanguageConfidence, det.Confidence)

	if d.cfg.Expect != "" && !strings.EqualFold(det.Code, d.cfg.Expect) {
		return fmt.Errorf("%w: detected %s, expected %s", ErrUnexpectedLanguage, det.Code, d.cfg.Expect)
	}
	return nil
}
