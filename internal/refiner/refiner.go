// Package refiner polishes a draft translation in a second pass.
package refiner

import "context"

// Request is one draft to polish.
type Request struct {
	SourceLang string
	TargetLang string
	Source     string
	Draft      string
}

// Refiner reviews and improves a draft translation. An empty answer from the
// model yields the draft unchanged.
type Refiner interface {
	Refine(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to the Refiner interface.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Refine(ctx context.Context, req Request) (string, error) { return f(ctx, req) }
