// Package app assembles a pipeline from a configuration file and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/valpere/docpipe/internal/config"
	"github.com/valpere/docpipe/internal/metrics"
	"github.com/valpere/docpipe/internal/pipeline"
	"github.com/valpere/docpipe/internal/reader"
	"github.com/valpere/docpipe/internal/stages"
	"github.com/valpere/docpipe/internal/store"
)

// DefaultStages is used when the configuration names no stage.
var DefaultStages = []string{stages.TranslateName}

// ErrResumeWithoutStore indicates a resume request with no run history.
var ErrResumeWithoutStore = errors.New("resume requires a memory database")

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithRegistry builds stages from r instead of the default registry.
func WithRegistry(r *stages.Registry) Option {
	return func(a *App) {
		if r != nil {
			a.registry = r
		}
	}
}

// WithResources shares res with the stages, for example a preloaded engine.
func WithResources(res *pipeline.Resources) Option {
	return func(a *App) {
		if res != nil {
			a.resources = res
		}
	}
}

// App is an initialized pipeline plus the infrastructure around it.
type App struct {
	Pipeline *pipeline.Pipeline
	Metrics  *metrics.Collector

	// Store is nil when no memory database is configured.
	Store *store.Store

	cfg       *config.File
	logger    *slog.Logger
	registry  *stages.Registry
	resources *pipeline.Resources
	reader    pipeline.Reader
}

// New builds and initializes the pipeline described by cfg. Stages are
// initialized once here and reused by every Run.
func New(ctx context.Context, cfg *config.File, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		registry:  stages.DefaultRegistry(),
		resources: pipeline.NewResources(),
		Metrics:   metrics.New(),
	}
	for _, opt := range opts {
		opt(a)
	}

	rd, err := reader.New(reader.Options{
		Extensions:  cfg.Reader.Extensions,
		Recursive:   cfg.Reader.Recursive,
		ExcludeDirs: cfg.Reader.ExcludeDirs,
		Encoding:    cfg.Reader.Encoding,
		Normalize:   cfg.Reader.Normalize,
		Markdown:    cfg.Reader.Markdown,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	a.reader = rd

	observers := []pipeline.Observer{a.Metrics}
	if cfg.MemoryDB != "" {
		a.Store, err = store.New(cfg.MemoryDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		pipeline.Provide(a.resources, stages.StoreKey, a.Store)
		observers = append(observers, store.NewRecorder(a.Store, a.logger))
	}

	a.Pipeline = pipeline.New(
		pipeline.WithLogger(a.logger),
		pipeline.WithObserver(observers...),
		pipeline.WithContinueOnError(cfg.ContinueOnError),
		pipeline.WithStrictConfig(cfg.StrictConfig),
		pipeline.WithResources(a.resources),
		// ULIDs sort by creation time, so run listings stay chronological.
		pipeline.WithRunIDFunc(func() string { return ulid.Make().String() }),
	)
	if err := a.assemble(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) assemble(ctx context.Context) error {
	if err := a.Pipeline.SetReader(a.reader); err != nil {
		return err
	}

	specs := a.cfg.Stages
	if len(specs) == 0 {
		for _, name := range DefaultStages {
			specs = append(specs, config.StageSpec{Name: name})
		}
	}
	for _, spec := range specs {
		stage, err := a.registry.Build(spec.Name)
		if err != nil {
			return err
		}
		if err := a.Pipeline.Add(stage, spec.Config); err != nil {
			return fmt.Errorf("failed to add stage %s: %w", spec.Name, err)
		}
	}
	return a.Pipeline.Initialize(ctx)
}

// Run processes source once. With a non-empty resumeID, documents that run
// already completed are skipped. The metrics file, if configured, is
// rewritten after every run.
func (a *App) Run(ctx context.Context, source, resumeID string) (*pipeline.Report, error) {
	if resumeID != "" {
		if a.Store == nil {
			return nil, ErrResumeWithoutStore
		}
		done, err := a.Store.CompletedDocuments(ctx, resumeID)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: %w", resumeID, err)
		}
		a.logger.Info("resuming run", "run", resumeID, "completed", len(done))
		if err := a.Pipeline.SetReader(reader.Filter(a.reader, func(id string) bool { return !done[id] })); err != nil {
			return nil, err
		}
		defer a.Pipeline.SetReader(a.reader)
	}

	report, err := a.Pipeline.Run(ctx, source)

	if a.cfg.MetricsFile != "" {
		if werr := a.Metrics.WriteTextfile(a.cfg.MetricsFile); werr != nil {
			a.logger.Warn("failed to write metrics", "path", a.cfg.MetricsFile, "error", werr)
		}
	}
	return report, err
}

// Close releases the stages and the database.
func (a *App) Close() error {
	var errs []error
	if a.Pipeline != nil {
		if err := a.Pipeline.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
