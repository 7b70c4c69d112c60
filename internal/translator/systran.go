package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultSystranURL   = "https://api-systran-systran-translation-v1.p.rapidapi.com"
	systranRapidAPIHost = "api-systran-systran-translation-v1.p.rapidapi.com"
)

// SystranService uses the Systran translation API through RapidAPI.
type SystranService struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewSystranService creates a Systran backend.
func NewSystranService(cfg ServiceConfig) *SystranService {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultSystranURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SystranService{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *SystranService) Name() string {
	return "systran"
}

type systranRequest struct {
	Text   []string `json:"text"`
	Source string   `json:"source,omitempty"`
	Target string   `json:"target"`
	Format string   `json:"format"`
}

func (s *SystranService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	if s.apiKey == "" {
		return fail(result, ErrEmptyAPIKey)
	}

	source := req.SourceLang
	if source == "auto" {
		source = ""
	}
	body, err := json.Marshal(systranRequest{
		Text:   []string{req.Text},
		Source: source,
		Target: req.TargetLang,
		Format: "text",
	})
	if err != nil {
		return fail(result, fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/translation/text/translate", bytes.NewReader(body))
	if err != nil {
		return fail(result, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-RapidAPI-Key", s.apiKey)
	httpReq.Header.Set("X-RapidAPI-Host", systranRapidAPIHost)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fail(result, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fail(result, fmt.Errorf("systran returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out struct {
		Outputs []struct {
			Output string `json:"output"`
		} `json:"outputs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fail(result, fmt.Errorf("failed to decode response: %w", err))
	}
	if len(out.Outputs) == 0 || out.Outputs[0].Output == "" {
		return fail(result, ErrEmptyResponse)
	}

	result.TranslatedText = out.Outputs[0].Output
	result.Confidence = 1.0
	return result, nil
}

func (s *SystranService) IsAvailable(context.Context) error {
	if s.apiKey == "" {
		return ErrEmptyAPIKey
	}
	return nil
}
