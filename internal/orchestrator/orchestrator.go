// Package orchestrator runs a translation request through an ordered chain of
// backends, retrying each before falling back to the next, or collects
// candidates from all of them for an arbiter.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/valpere/docpipe/internal/arbiter"
	"github.com/valpere/docpipe/internal/translator"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 500 * time.Millisecond
)

var (
	// ErrNoServices indicates an orchestrator without backends.
	ErrNoServices = errors.New("no translation services configured")

	// ErrAllFailed indicates every backend failed every attempt.
	ErrAllFailed = errors.New("all translation services failed")
)

// Config controls retries. Zero values select the defaults.
type Config struct {
	// Timeout bounds a single backend call; zero means no extra bound.
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// Validator checks a translation before it is accepted.
type Validator interface {
	IsValid(text, targetLang string) (bool, error)
}

// Result is the accepted translation.
type Result struct {
	translator.ServiceResult

	// Attempts counts backend calls across all services.
	Attempts int

	// Validated is false when no backend passed validation and the last
	// unvalidated translation was returned instead.
	Validated bool

	// Errors collects the failures that preceded the accepted result.
	Errors []error

	// Candidates counts the translations offered to the arbiter.
	Candidates int

	// Reasoning is the arbiter's explanation, if one was given.
	Reasoning string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithValidator checks each translation with v.
func WithValidator(v Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithArbiter asks every service and lets a choose the final translation.
func WithArbiter(a arbiter.Arbiter) Option {
	return func(o *Orchestrator) { o.arbiter = a }
}

// WithLogger sets the logger for retry and fallback messages.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

type Orchestrator struct {
	services  []translator.TranslationService
	config    Config
	validator Validator
	arbiter   arbiter.Arbiter
	logger    *slog.Logger
}

func New(services []translator.TranslationService, config Config, opts ...Option) *Orchestrator {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultRetryDelay
	}
	o := &Orchestrator{
		services: services,
		config:   config,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Services returns the backend names in fallback order.
func (o *Orchestrator) Services() []string {
	names := make([]string, len(o.services))
	for i, svc := range o.services {
		names[i] = svc.Name()
	}
	return names
}

// Execute tries each service in order, up to MaxAttempts times each, and
// returns the first translation that succeeds and passes validation. With an
// arbiter, every service is asked and the arbiter chooses among the accepted
// candidates.
func (o *Orchestrator) Execute(ctx context.Context, req translator.TranslateRequest) (*Result, error) {
	if len(o.services) == 0 {
		return nil, ErrNoServices
	}

	run := &execution{}
	for _, svc := range o.services {
		res, err := o.try(ctx, svc, req, run)
		if err != nil {
			return nil, err
		}
		if res == nil {
			o.logger.Debug("falling back", "from", svc.Name())
			continue
		}
		if o.arbiter == nil {
			return &Result{ServiceResult: *res, Attempts: run.attempts, Validated: true, Errors: run.errs}, nil
		}
		run.candidates = append(run.candidates, *res)
	}

	if len(run.candidates) > 0 {
		return o.arbitrate(ctx, req, run)
	}
	if run.fallback != nil {
		o.logger.Warn("no translation passed validation, using last result",
			"service", run.fallback.ServiceName)
		return &Result{ServiceResult: *run.fallback, Attempts: run.attempts, Errors: run.errs}, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(run.errs...))
}

// execution is the state of one Execute call.
type execution struct {
	errs       []error
	attempts   int
	fallback   *translator.ServiceResult
	candidates []translator.ServiceResult
}

// try calls svc up to MaxAttempts times. A nil result with a nil error means
// the service gave no acceptable translation.
func (o *Orchestrator) try(ctx context.Context, svc translator.TranslationService, req translator.TranslateRequest, run *execution) (*translator.ServiceResult, error) {
	for attempt := 1; attempt <= o.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 1 {
			if err := o.wait(ctx); err != nil {
				return nil, err
			}
		}

		run.attempts++
		res, err := o.call(ctx, svc, req)
		if err != nil {
			run.errs = append(run.errs, fmt.Errorf("%s attempt %d: %w", svc.Name(), attempt, err))
			o.logger.Warn("translation attempt failed",
				"service", svc.Name(), "attempt", attempt, "error", err)
			if errors.Is(err, translator.ErrEmptyAPIKey) || ctx.Err() != nil {
				return nil, nil
			}
			continue
		}

		if verr := o.validate(res.TranslatedText, req.TargetLang); verr != nil {
			run.errs = append(run.errs, fmt.Errorf("%s attempt %d: %w", svc.Name(), attempt, verr))
			o.logger.Warn("translation rejected",
				"service", svc.Name(), "attempt", attempt, "error", verr)
			run.fallback = res
			continue
		}
		return res, nil
	}
	return nil, nil
}

func (o *Orchestrator) validate(text, targetLang string) error {
	if o.validator == nil {
		return nil
	}
	ok, err := o.validator.IsValid(text, targetLang)
	if ok {
		return nil
	}
	if err == nil {
		err = errors.New("validation failed")
	}
	return err
}

// arbitrate asks the arbiter to choose among the candidates. When it fails,
// or composes a translation that does not validate, the first candidate wins.
func (o *Orchestrator) arbitrate(ctx context.Context, req translator.TranslateRequest, run *execution) (*Result, error) {
	result := &Result{
		ServiceResult: run.candidates[0],
		Attempts:      run.attempts,
		Validated:     true,
		Errors:        run.errs,
		Candidates:    len(run.candidates),
	}

	eval, err := o.arbiter.Evaluate(ctx, req.Text, req.SourceLang, req.TargetLang, run.candidates)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		o.logger.Warn("arbiter failed, using first candidate", "error", err)
		result.Errors = append(result.Errors, fmt.Errorf("arbiter: %w", err))
		return result, nil
	}
	result.Reasoning = eval.Reasoning

	if eval.IsComposite {
		text := strings.TrimSpace(eval.CompositeText)
		if text == "" {
			return result, nil
		}
		if verr := o.validate(text, req.TargetLang); verr != nil {
			o.logger.Warn("composite translation rejected", "error", verr)
			result.Errors = append(result.Errors, fmt.Errorf("arbiter: %w", verr))
			return result, nil
		}
		result.ServiceResult = translator.ServiceResult{ServiceName: arbiter.Composite, TranslatedText: text}
		return result, nil
	}

	for _, c := range run.candidates {
		if c.ServiceName == eval.SelectedService {
			result.ServiceResult = c
			break
		}
	}
	return result, nil
}

func (o *Orchestrator) call(ctx context.Context, svc translator.TranslationService, req translator.TranslateRequest) (*translator.ServiceResult, error) {
	if o.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()
	}

	res, err := svc.Translate(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, translator.ErrEmptyResponse
	}
	if res.Error != "" {
		return nil, errors.New(res.Error)
	}
	return res, nil
}

func (o *Orchestrator) wait(ctx context.Context) error {
	timer := time.NewTimer(o.config.RetryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
