package stages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/valpere/docpipe/internal/arbiter"
	"github.com/valpere/docpipe/internal/detector"
	"github.com/valpere/docpipe/internal/document"
	"github.com/valpere/docpipe/internal/engine"
	"github.com/valpere/docpipe/internal/orchestrator"
	"github.com/valpere/docpipe/internal/pipeline"
	"github.com/valpere/docpipe/internal/translator"
	"github.com/valpere/docpipe/internal/validator"
	"github.com/valpere/docpipe/internal/writer"
)

const (
	TranslateName = "translate"

	DefaultTaskPrefix = "translate English to German: "
	DefaultOutputDir  = "mt_test_output"

	// UnitAnnotation marks each line sent to the engine. Its "translation"
	// attribute holds the engine output.
	UnitAnnotation = "unit"
)

// ErrLexiconRequired indicates the lexicon engine without a lexicon file.
var ErrLexiconRequired = errors.New("lexicon engine needs a lexicon file")

type translateConfig struct {
	TaskPrefix     string   `mapstructure:"task_prefix"`
	OutputDir      string   `mapstructure:"output_dir" validate:"required"`
	Engine         string   `mapstructure:"engine" validate:"required"`
	Fallback       []string `mapstructure:"fallback"`
	SourceLang     string   `mapstructure:"source_lang"`
	TargetLang     string   `mapstructure:"target_lang" validate:"required"`
	Lexicon        string   `mapstructure:"lexicon"`
	MaxUnitChars   int      `mapstructure:"max_unit_chars" validate:"gte=0"`
	ContextWords   int      `mapstructure:"context_words" validate:"gte=0"`
	FuzzyThreshold float64  `mapstructure:"fuzzy_threshold" validate:"gte=0,lte=1"`
	SkipBlankUnits bool     `mapstructure:"skip_blank_units"`
	Validate       bool     `mapstructure:"validate"`
	Arbiter        bool     `mapstructure:"arbiter"`
	ArbiterModel   string   `mapstructure:"arbiter_model"`
	ArbiterURL     string   `mapstructure:"arbiter_url"`

	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=0"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`

	translator.ServiceConfig `mapstructure:",squash"`
}

// Translate splits a document into lines, translates them with an Engine
// and writes the joined result to output_dir under the document's base
// name. Every line is a unit; with skip_blank_units, blank lines are kept
// as they are without reaching the engine.
type Translate struct {
	engine engine.Engine
	logger *slog.Logger

	cfg translateConfig
	out *writer.Dir
}

// TranslateOption configures a Translate stage.
type TranslateOption func(*Translate)

// WithEngine fixes the engine, ignoring the engine option.
func WithEngine(e engine.Engine) TranslateOption {
	return func(t *Translate) { t.engine = e }
}

// WithTranslateLogger sets the logger passed to service engines.
func WithTranslateLogger(l *slog.Logger) TranslateOption {
	return func(t *Translate) { t.logger = l }
}

func NewTranslate(opts ...TranslateOption) *Translate {
	t := &Translate{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Translate) Name() string { return TranslateName }

func (t *Translate) DefaultConfig() pipeline.Config {
	return pipeline.Config{
		"task_prefix":      DefaultTaskPrefix,
		"output_dir":       DefaultOutputDir,
		"engine":           "lexicon",
		"fallback":         "",
		"source_lang":      "en",
		"target_lang":      "de",
		"lexicon":          "",
		"max_unit_chars":   0,
		"context_words":    0,
		"skip_blank_units": false,
		"fuzzy_threshold":  0.0,
		"validate":         false,
		"arbiter":          false,
		"arbiter_model":    arbiter.DefaultModel,
		"arbiter_url":      arbiter.DefaultBaseURL,
		"max_attempts":     orchestrator.DefaultMaxAttempts,
		"retry_delay":      orchestrator.DefaultRetryDelay.String(),
		"api_key":          "",
		"model":            "",
		"base_url":         "",
		"timeout":          "60s",
		"credentials":      "",
		"email":            "",
		"max_tokens":       0,
		"rate_limit":       0.0,
		"burst":            0,
	}
}

func (t *Translate) Initialize(ctx context.Context, res *pipeline.Resources, cfg pipeline.Config) error {
	if err := cfg.Decode(t.Name(), &t.cfg); err != nil {
		return err
	}

	out, err := writer.NewDir(t.cfg.OutputDir)
	if err != nil {
		return pipeline.NewConfigurationError(t.Name(), "output_dir", err)
	}
	t.out = out

	if t.engine != nil {
		return nil
	}
	if e, ok := pipeline.Lookup(res, EngineKey); ok {
		t.engine = e
		return nil
	}
	e, err := t.buildEngine(res)
	if err != nil {
		return configError(t.Name(), "engine", err)
	}
	t.engine = e
	return nil
}

func (t *Translate) buildEngine(res *pipeline.Resources) (engine.Engine, error) {
	switch t.cfg.Engine {
	case "identity":
		return engine.Identity(), nil
	case "lexicon":
		if t.cfg.Lexicon == "" {
			return nil, pipeline.NewConfigurationError(t.Name(), "lexicon", fmt.Errorf("%w: %w", pipeline.ErrMissingOption, ErrLexiconRequired))
		}
		entries, err := engine.LoadLexicon(t.cfg.Lexicon)
		if err != nil {
			return nil, pipeline.NewConfigurationError(t.Name(), "lexicon", err)
		}
		return engine.NewLexiconEngine(entries), nil
	}

	names := append([]string{t.cfg.Engine}, t.cfg.Fallback...)
	services := make([]translator.TranslationService, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		svc, err := translator.New(name, t.cfg.ServiceConfig)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}

	orchOpts := []orchestrator.Option{orchestrator.WithLogger(t.logger)}
	if t.cfg.Validate {
		det, err := t.detector(res)
		if err != nil {
			return nil, pipeline.NewConfigurationError(t.Name(), "validate", err)
		}
		orchOpts = append(orchOpts, orchestrator.WithValidator(validator.New(det)))
	}
	if t.cfg.Arbiter {
		arb, ok := pipeline.Lookup(res, ArbiterKey)
		if !ok {
			arb = arbiter.NewOllamaArbiter(t.cfg.ArbiterModel, t.cfg.ArbiterURL, t.cfg.Timeout)
		}
		orchOpts = append(orchOpts, orchestrator.WithArbiter(arb))
	}
	orch := orchestrator.New(services, orchestrator.Config{
		Timeout:     t.cfg.Timeout,
		MaxAttempts: t.cfg.MaxAttempts,
		RetryDelay:  t.cfg.RetryDelay,
	}, orchOpts...)

	engineOpts := []engine.ServiceOption{
		engine.WithMaxUnitChars(t.cfg.MaxUnitChars),
		engine.WithContextWords(t.cfg.ContextWords),
		engine.WithServiceLogger(t.logger),
	}
	if s, ok := pipeline.Lookup(res, StoreKey); ok {
		engineOpts = append(engineOpts, engine.WithMemory(s, t.cfg.FuzzyThreshold))
	}
	return engine.NewService(orch, engineOpts...), nil
}

// detector reuses a shared detector, else builds one over the language pair.
func (t *Translate) detector(res *pipeline.Resources) (*detector.Detector, error) {
	if det, ok := pipeline.Lookup(res, DetectorKey); ok {
		return det, nil
	}
	det, err := detector.New(t.cfg.SourceLang, t.cfg.TargetLang)
	if err != nil {
		return nil, err
	}
	pipeline.Provide(res, DetectorKey, det)
	return det, nil
}

// Start releases the output names claimed by the previous run.
func (t *Translate) Start(context.Context) error {
	t.out.Reset()
	return nil
}

func (t *Translate) Process(ctx context.Context, doc *document.Document) error {
	lines := doc.Lines()

	var (
		units []string
		index []int
	)
	for i, line := range lines {
		if t.cfg.SkipBlankUnits && strings.TrimSpace(line) == "" {
			continue
		}
		units = append(units, line)
		index = append(index, i)
	}

	outputs := make([]string, len(lines))
	copy(outputs, lines)
	if len(units) > 0 {
		translated, err := t.engine.Translate(ctx, engine.Request{
			Prefix:     t.cfg.TaskPrefix,
			Units:      units,
			SourceLang: t.cfg.SourceLang,
			TargetLang: t.cfg.TargetLang,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", t.engine.Name(), err)
		}
		if err := engine.CheckOutputs(engine.Request{Units: units}, translated); err != nil {
			return err
		}
		for j, i := range index {
			outputs[i] = translated[j]
		}
	}

	if err := annotateUnits(doc, lines, outputs); err != nil {
		return err
	}

	text := strings.Join(outputs, "\n")
	document.Set(doc, document.KeyTranslation, text)

	path, err := t.out.Write(doc.ID(), text)
	if err != nil {
		return err
	}
	document.Set(doc, document.KeyOutputPath, path)
	return nil
}

// annotateUnits records the span of every non-blank line with its output.
func annotateUnits(doc *document.Document, lines, outputs []string) error {
	offset := 0
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			id, err := doc.AddAnnotation(UnitAnnotation, offset, offset+len(line))
			if err != nil {
				return err
			}
			if err := doc.SetAttr(id, "translation", outputs[i]); err != nil {
				return err
			}
		}
		offset += len(line) + 1
	}
	return nil
}
