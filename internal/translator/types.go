// Package translator wraps remote and local machine translation backends
// behind one interface.
package translator

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmptyAPIKey indicates a backend that needs an API key has none.
	ErrEmptyAPIKey = errors.New("API key required")

	// ErrEmptyResponse indicates a backend answered without a translation.
	ErrEmptyResponse = errors.New("empty response")

	// ErrUnknownService indicates an unregistered backend name.
	ErrUnknownService = errors.New("unknown translation service")
)

// ServiceConfig holds the options shared by all backends. Fields a backend
// does not use are ignored.
type ServiceConfig struct {
	APIKey      string        `mapstructure:"api_key" json:"api_key"`
	Model       string        `mapstructure:"model" json:"model"`
	BaseURL     string        `mapstructure:"base_url" json:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
	Credentials string        `mapstructure:"credentials" json:"credentials"`
	Email       string        `mapstructure:"email" json:"email"`
	MaxTokens   int           `mapstructure:"max_tokens" json:"max_tokens"`

	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" json:"rate_limit"`
	Burst     int     `mapstructure:"burst" json:"burst"`
}

// TranslateRequest is one piece of text to translate.
type TranslateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`

	// Instructions are appended to LLM prompts, e.g. the task prefix.
	Instructions string `json:"instructions,omitempty"`

	// Context is preceding text for continuity. It is not translated.
	Context string `json:"context,omitempty"`

	// Glossary maps source terms to mandatory translations.
	Glossary map[string]string `json:"glossary,omitempty"`
}

// ServiceResult is the outcome of one backend call.
type ServiceResult struct {
	ServiceName    string            `json:"service_name"`
	TranslatedText string            `json:"translated_text"`
	Confidence     float64           `json:"confidence"`
	Metadata       map[string]string `json:"metadata"`
	Latency        time.Duration     `json:"latency"`
	Error          string            `json:"error,omitempty"`
}

// TranslationService is a translation backend.
type TranslationService interface {
	Name() string
	Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error)
	IsAvailable(ctx context.Context) error
}

// fail records err on the result and returns both, the convention every
// backend follows so callers can log a partial result.
func fail(result *ServiceResult, err error) (*ServiceResult, error) {
	result.Error = err.Error()
	return result, err
}
