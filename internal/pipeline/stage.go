// Package pipeline orchestrates documents from a Reader through an ordered
// list of Stages. Stages are initialized once and then reused across any
// number of runs; each run processes documents strictly one at a time.
package pipeline

import (
	"context"
	"iter"

	"github.com/valpere/docpipe/internal/document"
)

// Stage is one transformation step of a pipeline.
type Stage interface {
	// Name identifies the stage in logs, errors and configuration.
	Name() string

	// DefaultConfig returns the stage's default options. It must not depend
	// on instance state so it can be called on a zero value.
	DefaultConfig() Config

	// Initialize is called exactly once, before any document is processed,
	// with the defaults merged with the caller's overrides. Heavy shared
	// state (models, output directories, detectors) is set up here.
	Initialize(ctx context.Context, res *Resources, cfg Config) error

	// Process transforms one document. Results go into the document's
	// derived state or to an external sink. An error aborts the run unless
	// the pipeline continues on error; it must leave the stage usable for
	// the next document.
	Process(ctx context.Context, doc *document.Document) error
}

// Starter is implemented by stages that keep per-run state. Start is called
// at the beginning of every run, before the first document is read,
// whether or not the previous run finished.
type Starter interface {
	Start(ctx context.Context) error
}

// Finisher is implemented by stages that need a hook after a run has
// consumed its whole source, for example to flush aggregated results.
type Finisher interface {
	Finish(ctx context.Context) error
}

// Reader supplies documents from a source. The returned sequence is lazy,
// finite and forward-only; calling Read again restarts from the beginning.
// A non-nil error paired with a nil document reports an item that could
// not be read; the sequence may continue after it.
type Reader interface {
	Read(ctx context.Context, source string) iter.Seq2[*document.Document, error]
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc func(ctx context.Context, source string) iter.Seq2[*document.Document, error]

// Read calls f.
func (f ReaderFunc) Read(ctx context.Context, source string) iter.Seq2[*document.Document, error] {
	return f(ctx, source)
}
