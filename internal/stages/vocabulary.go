package stages

import (
	"context"
	"strings"

	"github.com/valpere/docpipe/internal/document"
	"github.com/valpere/docpipe/internal/pipeline"
	"github.com/valpere/docpipe/internal/vocab"
)

const VocabularyName = "vocabulary"

type vocabularyConfig struct {
	Name            string `mapstructure:"name" validate:"required"`
	MinFrequency    int    `mapstructure:"min_frequency" validate:"gte=1"`
	NormalizeDigits bool   `mapstructure:"normalize_digits"`
	Lowercase       bool   `mapstructure:"lowercase"`
	SaveDir         string `mapstructure:"save_dir"`
}

// Vocabulary counts tokens across a run. Counts start empty on every run,
// including after an aborted one. When the run finishes it publishes
// a closed alphabet of the tokens seen at least min_frequency times under
// VocabularyKey and, with save_dir, saves it as <name>.json.
type Vocabulary struct {
	cfg       vocabularyConfig
	resources *pipeline.Resources
	counts    map[string]int
}

func NewVocabulary() *Vocabulary { return &Vocabulary{} }

func (v *Vocabulary) Name() string { return VocabularyName }

func (v *Vocabulary) DefaultConfig() pipeline.Config {
	return pipeline.Config{
		"name":             "words",
		"min_frequency":    1,
		"normalize_digits": true,
		"lowercase":        false,
		"save_dir":         "",
	}
}

func (v *Vocabulary) Initialize(_ context.Context, res *pipeline.Resources, cfg pipeline.Config) error {
	if err := cfg.Decode(v.Name(), &v.cfg); err != nil {
		return err
	}
	v.resources = res
	v.counts = make(map[string]int)
	return nil
}

func (v *Vocabulary) Start(context.Context) error {
	clear(v.counts)
	return nil
}

func (v *Vocabulary) Process(_ context.Context, doc *document.Document) error {
	tokens := vocab.Whitespace(doc.Content())
	for _, tok := range tokens {
		v.counts[v.normalize(tok)]++
	}
	document.Set(doc, document.KeyTokenCount, len(tokens))
	return nil
}

func (v *Vocabulary) normalize(tok string) string {
	if v.cfg.NormalizeDigits {
		tok = vocab.NormalizeDigits(tok)
	}
	if v.cfg.Lowercase {
		tok = strings.ToLower(tok)
	}
	return tok
}

// Finish publishes the alphabet of the run.
func (v *Vocabulary) Finish(context.Context) error {
	kept := make(map[string]int, len(v.counts))
	for tok, n := range v.counts {
		if n >= v.cfg.MinFrequency {
			kept[tok] = n
		}
	}

	alphabet := vocab.FromCounts(v.cfg.Name, kept)
	pipeline.Provide(v.resources, VocabularyKey, alphabet)

	if v.cfg.SaveDir != "" {
		if _, err := alphabet.Save(v.cfg.SaveDir, v.cfg.Name); err != nil {
			return err
		}
	}
	return nil
}
