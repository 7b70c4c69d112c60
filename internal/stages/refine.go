package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valpere/docpipe/internal/document"
	"github.com/valpere/docpipe/internal/pipeline"
	"github.com/valpere/docpipe/internal/refiner"
	"github.com/valpere/docpipe/internal/writer"
)

const RefineName = "refine"

// ErrNoTranslation indicates refine ran before any stage produced a
// translation.
var ErrNoTranslation = errors.New("document has no translation")

type refineConfig struct {
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SourceLang string        `mapstructure:"source_lang"`
	TargetLang string        `mapstructure:"target_lang" validate:"required"`
	OutputDir  string        `mapstructure:"output_dir"`
}

// Refine polishes the translation written by an earlier stage line by line.
// Lines that were blank in the draft stay blank.
type Refine struct {
	cfg     refineConfig
	refiner refiner.Refiner
	out     *writer.Dir
}

func NewRefine() *Refine { return &Refine{} }

func (r *Refine) Name() string { return RefineName }

func (r *Refine) DefaultConfig() pipeline.Config {
	return pipeline.Config{
		"model":       refiner.DefaultModel,
		"base_url":    refiner.DefaultBaseURL,
		"timeout":     refiner.DefaultTimeout.String(),
		"source_lang": "en",
		"target_lang": "de",
		"output_dir":  "",
	}
}

func (r *Refine) Initialize(_ context.Context, res *pipeline.Resources, cfg pipeline.Config) error {
	if err := cfg.Decode(r.Name(), &r.cfg); err != nil {
		return err
	}
	if r.cfg.OutputDir != "" {
		out, err := writer.NewDir(r.cfg.OutputDir)
		if err != nil {
			return pipeline.NewConfigurationError(r.Name(), "output_dir", err)
		}
		r.out = out
	}

	if ref, ok := pipeline.Lookup(res, RefinerKey); ok {
		r.refiner = ref
		return nil
	}
	r.refiner = refiner.NewOllamaRefiner(r.cfg.Model, r.cfg.BaseURL, r.cfg.Timeout)
	return nil
}

func (r *Refine) Start(context.Context) error {
	if r.out != nil {
		r.out.Reset()
	}
	return nil
}

func (r *Refine) Process(ctx context.Context, doc *document.Document) error {
	draft, ok := document.Get(doc, document.KeyTranslation)
	if !ok {
		return ErrNoTranslation
	}

	sources := doc.Lines()
	drafts := strings.Split(draft, "\n")
	if len(sources) != len(drafts) {
		// Line structure changed; refine the text as a whole.
		sources, drafts = []string{doc.Content()}, []string{draft}
	}

	refined := make([]string, len(drafts))
	for i, line := range drafts {
		if strings.TrimSpace(line) == "" {
			refined[i] = line
			continue
		}
		text, err := r.refiner.Refine(ctx, refiner.Request{
			SourceLang: r.cfg.SourceLang,
			TargetLang: r.cfg.TargetLang,
			Source:     sources[i],
			Draft:      line,
		})
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		refined[i] = text
	}

	text := strings.Join(refined, "\n")
	document.Set(doc, document.KeyRefined, text)

	if r.out != nil {
		path, err := r.out.Write(doc.ID(), text)
		if err != nil {
			return err
		}
		document.Set(doc, document.KeyOutputPath, path)
	}
	return nil
}
