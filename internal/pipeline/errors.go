package pipeline

import (
	"errors"
	"fmt"
)

// Lifecycle and configuration errors.
var (
	// ErrNoReader indicates Initialize or Run was called without a reader.
	ErrNoReader = errors.New("no reader attached")

	// ErrNotInitialized indicates Run was called before Initialize.
	ErrNotInitialized = errors.New("pipeline not initialized")

	// ErrAlreadyInitialized indicates a second Initialize call.
	ErrAlreadyInitialized = errors.New("pipeline already initialized")

	// ErrInitializationFailed indicates an earlier Initialize call failed.
	// Stages are never initialized twice, so the pipeline cannot recover.
	ErrInitializationFailed = errors.New("pipeline initialization failed")

	// ErrSealed indicates a stage was added after Initialize.
	ErrSealed = errors.New("pipeline stages are sealed")

	// ErrRunning indicates an operation that is not allowed while a run is
	// in progress.
	ErrRunning = errors.New("pipeline is running")

	// ErrClosed indicates the pipeline was closed.
	ErrClosed = errors.New("pipeline closed")

	// ErrDuplicateStage indicates the same stage value was added twice.
	ErrDuplicateStage = errors.New("stage already added")

	// ErrNilStage indicates Add was called with a nil stage.
	ErrNilStage = errors.New("stage is nil")

	// ErrMissingOption indicates a required configuration option is absent.
	ErrMissingOption = errors.New("missing required option")

	// ErrInvalidOption indicates a configuration option has an unusable value.
	ErrInvalidOption = errors.New("invalid option")

	// ErrUnknownOption indicates an override key the stage does not declare.
	ErrUnknownOption = errors.New("unknown option")

	// ErrStagePanic indicates a stage panicked while processing a document.
	ErrStagePanic = errors.New("stage panicked")
)

// ConfigurationError reports a stage that could not be initialized because
// its configuration is missing, malformed or points at an unusable resource.
// It is always fatal: no document is processed after it.
type ConfigurationError struct {
	// Stage is the name of the stage being initialized.
	Stage string

	// Key is the offending option, when known.
	Key string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("configuration error: stage %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("configuration error: stage %s: option %s: %v", e.Stage, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(stage, key string, err error) *ConfigurationError {
	return &ConfigurationError{Stage: stage, Key: key, Err: err}
}

// StageError reports a failure inside a stage's Process or Finish call.
type StageError struct {
	// Stage is the name of the failing stage.
	Stage string

	// Document is the identity of the document being processed. It is
	// empty for failures in Start or Finish.
	Document string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Document == "" {
		return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %s: document %s: %v", e.Stage, e.Document, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error { return e.Err }

// ReaderError reports a failure to enumerate or read a source document.
type ReaderError struct {
	// Source is the source passed to Run.
	Source string

	// Document is the identity of the unreadable document, when known.
	Document string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ReaderError) Error() string {
	if e.Document == "" {
		return fmt.Sprintf("reader: source %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("reader: source %s: document %s: %v", e.Source, e.Document, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReaderError) Unwrap() error { return e.Err }
