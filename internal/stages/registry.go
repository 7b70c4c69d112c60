// Package stages provides the built-in pipeline stages and a registry that
// builds them by name.
package stages

import (
	"errors"
	"fmt"
	"sort"

	"github.com/valpere/docpipe/internal/arbiter"
	"github.com/valpere/docpipe/internal/detector"
	"github.com/valpere/docpipe/internal/engine"
	"github.com/valpere/docpipe/internal/pipeline"
	"github.com/valpere/docpipe/internal/refiner"
	"github.com/valpere/docpipe/internal/store"
	"github.com/valpere/docpipe/internal/vocab"
)

// ErrUnknownStage indicates an unregistered stage name.
var ErrUnknownStage = errors.New("unknown stage")

// Shared resources. Stages read them during Initialize when present and
// fall back to building their own.
var (
	EngineKey     = pipeline.NewResourceKey[engine.Engine]("engine")
	StoreKey      = pipeline.NewResourceKey[*store.Store]("store")
	DetectorKey   = pipeline.NewResourceKey[*detector.Detector]("detector")
	RefinerKey    = pipeline.NewResourceKey[refiner.Refiner]("refiner")
	VocabularyKey = pipeline.NewResourceKey[*vocab.Alphabet]("vocabulary")
	ArbiterKey    = pipeline.NewResourceKey[arbiter.Arbiter]("arbiter")
)

// BuilderFunc creates a fresh, uninitialized stage.
type BuilderFunc func() pipeline.Stage

// Registry maps stage names to their builders.
type Registry struct {
	builders map[string]BuilderFunc
}

func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]BuilderFunc)}
}

// Register adds a builder. Name should match the stage's Name().
func (r *Registry) Register(name string, builder BuilderFunc) {
	r.builders[name] = builder
}

// Build creates a stage by name.
func (r *Registry) Build(name string) (pipeline.Stage, error) {
	builder, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, name)
	}
	return builder(), nil
}

func (r *Registry) Has(name string) bool {
	_, ok := r.builders[name]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterDefaults registers every built-in stage.
func RegisterDefaults(r *Registry) {
	r.Register(TranslateName, func() pipeline.Stage { return NewTranslate() })
	r.Register(CopyName, func() pipeline.Stage { return NewCopy() })
	r.Register(DetectName, func() pipeline.Stage { return NewDetect() })
	r.Register(RefineName, func() pipeline.Stage { return NewRefine() })
	r.Register(VocabularyName, func() pipeline.Stage { return NewVocabulary() })
}

// DefaultRegistry returns a registry holding the built-in stages.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterDefaults(r)
	return r
}

// configError wraps err as a configuration error unless it already is one.
func configError(stage, key string, err error) error {
	var cerr *pipeline.ConfigurationError
	if errors.As(err, &cerr) {
		return err
	}
	return pipeline.NewConfigurationError(stage, key, err)
}
