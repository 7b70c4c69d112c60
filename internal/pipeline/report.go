package pipeline

import (
	"context"
	"time"
)

// StageTiming records how long one stage spent on one document.
type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// DocumentResult is the outcome of one document in a run.
type DocumentResult struct {
	// Document is the document identity. It may be empty for reader
	// failures that could not name the item.
	Document string

	// Stages lists the stages that ran, in order, including a failed one.
	Stages []StageTiming

	// Duration is the total time spent on the document.
	Duration time.Duration

	// FailedStage names the stage that failed, if any.
	FailedStage string

	// Err is nil on success, otherwise a *StageError or *ReaderError.
	Err error
}

// OK reports whether the document went through every stage.
func (r DocumentResult) OK() bool { return r.Err == nil }

// RunInfo identifies a run to observers.
type RunInfo struct {
	ID        string
	Source    string
	StartedAt time.Time
}

// Report summarises a run. It is returned by Run even when the run fails.
type Report struct {
	RunInfo

	FinishedAt time.Time
	Documents  []DocumentResult
	Succeeded  int
	Failed     int

	// Err is the error that aborted the run, if any.
	Err error
}

// Failures returns the results of failed documents.
func (r *Report) Failures() []DocumentResult {
	var out []DocumentResult
	for _, d := range r.Documents {
		if !d.OK() {
			out = append(out, d)
		}
	}
	return out
}

// Duration is the wall-clock length of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) add(res DocumentResult) {
	r.Documents = append(r.Documents, res)
	if res.OK() {
		r.Succeeded++
	} else {
		r.Failed++
	}
}

// Observer receives run lifecycle events. Implementations must not retain
// the report after RunFinished returns if they mutate it.
type Observer interface {
	RunStarted(ctx context.Context, run RunInfo)
	DocumentProcessed(ctx context.Context, run RunInfo, res DocumentResult)
	RunFinished(ctx context.Context, report *Report)
}
