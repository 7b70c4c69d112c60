package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/valpere/docpipe/internal/document"
)

const tracerName = "github.com/valpere/docpipe/internal/pipeline"

// State is the lifecycle position of a Pipeline.
type State int

const (
	// StateEmpty is a new pipeline without a reader.
	StateEmpty State = iota
	// StateConfigured has a reader attached; stages may still be added.
	StateConfigured
	// StateInitialized has every stage initialized and is ready to run.
	StateInitialized
	// StateRunning is processing a source.
	StateRunning
	// StateFailed had a stage fail to initialize.
	StateFailed
	// StateClosed has released its stages.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateConfigured:
		return "configured"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type entry struct {
	stage       Stage
	overrides   Config
	config      Config
	initialized bool
}

// identity is equal for entries sharing one stage value. Non-comparable
// stages are identified by their entry.
func (e *entry) identity() any {
	if reflect.TypeOf(e.stage).Comparable() {
		return e.stage
	}
	return e
}

// Pipeline drives documents from one Reader through an ordered list of
// stages. It is not safe to run concurrently with itself; state transitions
// are guarded so a misuse fails with an error instead of racing.
type Pipeline struct {
	mu        sync.Mutex
	state     State
	reader    Reader
	entries   []*entry
	resources *Resources

	logger          *slog.Logger
	tracer          trace.Tracer
	observers       []Observer
	continueOnError bool
	strictConfig    bool
	newRunID        func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver registers observers notified of run events.
func WithObserver(obs ...Observer) Option {
	return func(p *Pipeline) {
		for _, o := range obs {
			if o != nil {
				p.observers = append(p.observers, o)
			}
		}
	}
}

// WithContinueOnError makes a failed document skip its remaining stages
// and be recorded in the report, instead of aborting the run.
func WithContinueOnError(v bool) Option {
	return func(p *Pipeline) { p.continueOnError = v }
}

// WithStrictConfig rejects override keys a stage does not declare in its
// DefaultConfig.
func WithStrictConfig(v bool) Option {
	return func(p *Pipeline) { p.strictConfig = v }
}

// WithResources shares an existing registry instead of creating one.
func WithResources(r *Resources) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.resources = r
		}
	}
}

// WithTracer sets the tracer used for run and stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithRunIDFunc overrides run ID generation.
func WithRunIDFunc(fn func() string) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.newRunID = fn
		}
	}
}

// New creates an empty pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		resources: NewResources(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:    otel.Tracer(tracerName),
		newRunID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Resources returns the registry shared by the pipeline's stages.
func (p *Pipeline) Resources() *Resources { return p.resources }

// SetReader attaches the document source. It may be replaced between runs.
func (p *Pipeline) SetReader(r Reader) error {
	if r == nil {
		return ErrNoReader
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateRunning:
		return ErrRunning
	case StateClosed:
		return ErrClosed
	case StateEmpty:
		p.state = StateConfigured
	}
	p.reader = r
	return nil
}

// Add appends a stage with configuration overrides. Stages run in the order
// they were added. A stage value can only be added once, since each stage is
// initialized exactly once.
func (p *Pipeline) Add(stage Stage, overrides Config) error {
	if stage == nil {
		return ErrNilStage
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateInitialized, StateFailed:
		return ErrSealed
	case StateRunning:
		return ErrRunning
	case StateClosed:
		return ErrClosed
	}
	e := &entry{stage: stage, overrides: overrides}
	for _, existing := range p.entries {
		if existing.identity() == e.identity() {
			return fmt.Errorf("%w: %s", ErrDuplicateStage, stage.Name())
		}
	}
	p.entries = append(p.entries, e)
	return nil
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.entries))
	for i, e := range p.entries {
		names[i] = e.stage.Name()
	}
	return names
}

// EffectiveConfig returns the merged configuration stage i was initialized
// with.
func (p *Pipeline) EffectiveConfig(i int) (Config, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.entries) || !p.entries[i].initialized {
		return nil, false
	}
	return p.entries[i].config.Merge(nil), true
}

// Initialize merges each stage's defaults with its overrides and calls the
// stage's Initialize, in order. The first failure is returned as a
// *ConfigurationError and leaves the pipeline unusable.
func (p *Pipeline) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateEmpty:
		return ErrNoReader
	case StateInitialized:
		return ErrAlreadyInitialized
	case StateFailed:
		return ErrInitializationFailed
	case StateRunning:
		return ErrRunning
	case StateClosed:
		return ErrClosed
	}

	for _, e := range p.entries {
		name := e.stage.Name()
		defaults := e.stage.DefaultConfig()
		if p.strictConfig {
			for _, k := range e.overrides.Keys() {
				if _, ok := defaults[k]; !ok {
					p.state = StateFailed
					return NewConfigurationError(name, k, ErrUnknownOption)
				}
			}
		}
		cfg := defaults.Merge(e.overrides)

		p.logger.Debug("initializing stage", "stage", name, "options", cfg.Keys())
		if err := e.stage.Initialize(ctx, p.resources, cfg); err != nil {
			p.state = StateFailed
			var cerr *ConfigurationError
			if errors.As(err, &cerr) {
				return err
			}
			return NewConfigurationError(name, "", err)
		}
		e.config = cfg
		e.initialized = true
	}

	p.state = StateInitialized
	p.logger.Info("pipeline initialized", "stages", len(p.entries))
	return nil
}

// Run reads every document from source and passes it through the stages.
// Each document goes through all stages before the next one is read. On
// the first failure the run stops and the error is returned; with
// WithContinueOnError the failure is recorded and the next document is
// read. The report is returned in both cases.
func (p *Pipeline) Run(ctx context.Context, source string) (*Report, error) {
	p.mu.Lock()
	switch p.state {
	case StateInitialized:
	case StateRunning:
		p.mu.Unlock()
		return nil, ErrRunning
	case StateClosed:
		p.mu.Unlock()
		return nil, ErrClosed
	case StateFailed:
		p.mu.Unlock()
		return nil, ErrInitializationFailed
	default:
		p.mu.Unlock()
		return nil, ErrNotInitialized
	}
	if p.reader == nil {
		p.mu.Unlock()
		return nil, ErrNoReader
	}
	p.state = StateRunning
	reader := p.reader
	entries := p.entries
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.state = StateInitialized
		p.mu.Unlock()
	}()

	report := &Report{RunInfo: RunInfo{
		ID:        p.newRunID(),
		Source:    source,
		StartedAt: time.Now(),
	}}
	log := p.logger.With("run", report.ID, "source", source)

	ctx, span := p.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("docpipe.run_id", report.ID),
		attribute.String("docpipe.source", source),
		attribute.Int("docpipe.stages", len(entries)),
	))
	defer span.End()

	for _, o := range p.observers {
		o.RunStarted(ctx, report.RunInfo)
	}
	log.Info("run started", "stages", len(entries))

	err := p.start(ctx, entries)
	if err == nil {
		err = p.consume(ctx, reader, source, entries, report, log)
	}
	if err == nil {
		err = p.finish(ctx, entries)
	}

	report.FinishedAt = time.Now()
	report.Err = err
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("run aborted", "error", err, "processed", len(report.Documents))
	} else {
		log.Info("run finished",
			"succeeded", report.Succeeded,
			"failed", report.Failed,
			"duration", report.Duration())
	}
	for _, o := range p.observers {
		o.RunFinished(ctx, report)
	}
	return report, err
}

func (p *Pipeline) consume(ctx context.Context, reader Reader, source string, entries []*entry, report *Report, log *slog.Logger) error {
	for doc, rerr := range reader.Read(ctx, source) {
		if err := ctx.Err(); err != nil {
			return err
		}

		var res DocumentResult
		if rerr != nil {
			res = DocumentResult{Err: asReaderError(source, rerr)}
			var re *ReaderError
			if errors.As(res.Err, &re) {
				res.Document = re.Document
			}
		} else if doc == nil {
			continue
		} else {
			res = p.processDocument(ctx, doc, entries, log)
		}

		report.add(res)
		for _, o := range p.observers {
			o.DocumentProcessed(ctx, report.RunInfo, res)
		}

		if res.Err != nil {
			if !p.continueOnError {
				return res.Err
			}
			log.Warn("document skipped", "document", res.Document, "error", res.Err)
		}
	}
	return ctx.Err()
}

func (p *Pipeline) processDocument(ctx context.Context, doc *document.Document, entries []*entry, log *slog.Logger) DocumentResult {
	start := time.Now()
	res := DocumentResult{Document: doc.ID()}

	for _, e := range entries {
		name := e.stage.Name()
		stageStart := time.Now()
		err := p.processStage(ctx, e.stage, doc)
		res.Stages = append(res.Stages, StageTiming{Stage: name, Duration: time.Since(stageStart)})
		if err != nil {
			res.FailedStage = name
			res.Err = &StageError{Stage: name, Document: doc.ID(), Err: err}
			break
		}
	}

	res.Duration = time.Since(start)
	if res.Err == nil {
		log.Debug("document processed", "document", res.Document, "duration", res.Duration)
	}
	return res
}

func (p *Pipeline) processStage(ctx context.Context, stage Stage, doc *document.Document) (err error) {
	ctx, span := p.tracer.Start(ctx, "stage.Process", trace.WithAttributes(
		attribute.String("docpipe.stage", stage.Name()),
		attribute.String("docpipe.document", doc.ID()),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStagePanic, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	return stage.Process(ctx, doc)
}

// start calls Start on every stage that implements Starter.
func (p *Pipeline) start(ctx context.Context, entries []*entry) error {
	for _, e := range entries {
		st, ok := e.stage.(Starter)
		if !ok {
			continue
		}
		if err := st.Start(ctx); err != nil {
			return &StageError{Stage: e.stage.Name(), Err: err}
		}
	}
	return nil
}

// finish calls Finish on every stage that implements Finisher.
func (p *Pipeline) finish(ctx context.Context, entries []*entry) error {
	for _, e := range entries {
		f, ok := e.stage.(Finisher)
		if !ok {
			continue
		}
		if err := f.Finish(ctx); err != nil {
			return &StageError{Stage: e.stage.Name(), Err: err}
		}
	}
	return nil
}

// Close releases every initialized stage that implements io.Closer. The
// pipeline cannot be used afterwards.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateRunning:
		return ErrRunning
	case StateClosed:
		return nil
	}
	p.state = StateClosed

	var errs []error
	for _, e := range p.entries {
		c, ok := e.stage.(io.Closer)
		if !ok || !e.initialized {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", e.stage.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func asReaderError(source string, err error) error {
	var re *ReaderError
	if errors.As(err, &re) {
		return err
	}
	return &ReaderError{Source: source, Err: err}
}
