// Package engine turns batches of source units into target units.
package engine

import (
	"context"
	"errors"
	"fmt"
)

// ErrOutputCount indicates an engine answered with the wrong number of units.
var ErrOutputCount = errors.New("engine output count mismatch")

// Request is one batch of units from a single document.
type Request struct {
	// Prefix is the task instruction prepended to every unit,
	// e.g. "translate English to German: ".
	Prefix string

	Units      []string
	SourceLang string
	TargetLang string
}

// Engine translates every unit of a request, returning one output per unit
// in the same order. Engines must be deterministic for identical requests.
type Engine interface {
	Name() string
	Translate(ctx context.Context, req Request) ([]string, error)
}

// CheckOutputs verifies that out has one entry per unit.
func CheckOutputs(req Request, out []string) error {
	if len(out) != len(req.Units) {
		return fmt.Errorf("%w: %d units, %d outputs", ErrOutputCount, len(req.Units), len(out))
	}
	return nil
}

// Func adapts a function to the Engine interface.
type Func func(ctx context.Context, req Request) ([]string, error)

func (f Func) Name() string { return "func" }

func (f Func) Translate(ctx context.Context, req Request) ([]string, error) {
	return f(ctx, req)
}

// Fixed returns an engine that answers every unit with text.
func Fixed(text string) Engine {
	return named{name: "fixed", fn: func(_ context.Context, req Request) ([]string, error) {
		out := make([]string, len(req.Units))
		for i := range out {
			out[i] = text
		}
		return out, nil
	}}
}

// Identity returns an engine that echoes every unit.
func Identity() Engine {
	return named{name: "identity", fn: func(_ context.Context, req Request) ([]string, error) {
		return append([]string(nil), req.Units...), nil
	}}
}

type named struct {
	name string
	fn   Func
}

func (n named) Name() string { return n.name }

func (n named) Translate(ctx context.Context, req Request) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return n.fn(ctx, req)
}
