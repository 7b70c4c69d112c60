// Package arbiter chooses the final translation among candidates produced by
// several backends.
package arbiter

import (
	"context"
	"errors"

	"github.com/valpere/docpipe/internal/translator"
)

// Composite is the SelectedService of a translation merged from several
// candidates.
const Composite = "composite"

// ErrNoCandidates indicates Evaluate was called without results.
var ErrNoCandidates = errors.New("no candidates to evaluate")

type EvaluationResult struct {
	SelectedService string
	CompositeText   string
	IsComposite     bool
	Reasoning       string
}

type Arbiter interface {
	Evaluate(ctx context.Context, source, sourceLang, targetLang string, results []translator.ServiceResult) (*EvaluationResult, error)
}
