package translator

import (
	"context"
	"fmt"
	"html"
	"time"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// GoogleService uses the Google Cloud Translation v2 API.
type GoogleService struct {
	credentials string
	apiKey      string
	endpoint    string
}

// NewGoogleService creates a Google backend. Credentials are a service
// account file; without one the application default credentials are used.
func NewGoogleService(cfg ServiceConfig) *GoogleService {
	return &GoogleService{
		credentials: cfg.Credentials,
		apiKey:      cfg.APIKey,
		endpoint:    cfg.BaseURL,
	}
}

func (s *GoogleService) Name() string {
	return "google"
}

func (s *GoogleService) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if s.credentials != "" {
		opts = append(opts, option.WithCredentialsFile(s.credentials))
	}
	if s.apiKey != "" {
		opts = append(opts, option.WithAPIKey(s.apiKey))
	}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	return opts
}

func (s *GoogleService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	target, err := language.Parse(req.TargetLang)
	if err != nil {
		return fail(result, fmt.Errorf("invalid target language: %w", err))
	}

	var opts *translate.Options
	if req.SourceLang != "" && req.SourceLang != "auto" {
		source, err := language.Parse(req.SourceLang)
		if err != nil {
			return fail(result, fmt.Errorf("invalid source language: %w", err))
		}
		opts = &translate.Options{Source: source, Format: translate.Text}
	} else {
		opts = &translate.Options{Format: translate.Text}
	}

	client, err := translate.NewClient(ctx, s.clientOptions()...)
	if err != nil {
		return fail(result, fmt.Errorf("failed to create client: %w", err))
	}
	defer client.Close()

	translations, err := client.Translate(ctx, []string{req.Text}, target, opts)
	if err != nil {
		return fail(result, fmt.Errorf("translation failed: %w", err))
	}
	if len(translations) == 0 || translations[0].Text == "" {
		return fail(result, ErrEmptyResponse)
	}

	result.TranslatedText = html.UnescapeString(translations[0].Text)
	result.Confidence = 1.0
	if src := translations[0].Source; src != language.Und {
		result.Metadata = map[string]string{"detected_source": src.String()}
	}
	return result, nil
}

func (s *GoogleService) IsAvailable(context.Context) error {
	return nil
}
