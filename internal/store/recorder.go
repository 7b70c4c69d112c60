package store

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/valpere/docpipe/internal/pipeline"
)

// Recorder writes run history through a pipeline.Observer. Storage errors
// are logged and never fail the run.
type Recorder struct {
	store  *Store
	logger *slog.Logger

	mu  sync.Mutex
	seq map[string]int
}

var _ pipeline.Observer = (*Recorder)(nil)

func NewRecorder(s *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Recorder{store: s, logger: logger, seq: make(map[string]int)}
}

func (r *Recorder) RunStarted(ctx context.Context, run pipeline.RunInfo) {
	if err := r.store.StartRun(ctx, run.ID, run.Source, run.StartedAt); err != nil {
		r.logger.Warn("failed to record run start", "run", run.ID, "error", err)
	}
}

func (r *Recorder) DocumentProcessed(ctx context.Context, run pipeline.RunInfo, res pipeline.DocumentResult) {
	r.mu.Lock()
	r.seq[run.ID]++
	seq := r.seq[run.ID]
	r.mu.Unlock()

	rec := DocumentRecord{
		Seq:         seq,
		Document:    res.Document,
		FailedStage: res.FailedStage,
		Duration:    res.Duration,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if err := r.store.RecordDocument(context.WithoutCancel(ctx), run.ID, rec); err != nil {
		r.logger.Warn("failed to record document", "run", run.ID, "document", res.Document, "error", err)
	}
}

func (r *Recorder) RunFinished(ctx context.Context, report *pipeline.Report) {
	r.mu.Lock()
	delete(r.seq, report.ID)
	r.mu.Unlock()

	status, errMsg := RunSucceeded, ""
	if report.Err != nil {
		status, errMsg = RunFailed, report.Err.Error()
	}
	// History is written even when the run was cancelled.
	if err := r.store.FinishRun(context.WithoutCancel(ctx), report.ID, status, report.Succeeded, report.Failed, errMsg, report.FinishedAt); err != nil {
		r.logger.Warn("failed to record run end", "run", report.ID, "error", err)
	}
}
