package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const DefaultMyMemoryURL = "https://api.mymemory.translated.net"

// MyMemoryService uses the free MyMemory API. An email raises the daily quota.
type MyMemoryService struct {
	baseURL string
	email   string
	client  *http.Client
}

// NewMyMemoryService creates a MyMemory backend.
func NewMyMemoryService(cfg ServiceConfig) *MyMemoryService {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultMyMemoryURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MyMemoryService{
		baseURL: baseURL,
		email:   cfg.Email,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *MyMemoryService) Name() string {
	return "mymemory"
}

type myMemoryResponse struct {
	ResponseData struct {
		TranslatedText string  `json:"translatedText"`
		Match          float64 `json:"match"`
	} `json:"responseData"`
	ResponseStatus  json.Number `json:"responseStatus"`
	ResponseDetails string      `json:"responseDetails"`
}

func (s *MyMemoryService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	q := url.Values{}
	q.Set("q", req.Text)
	q.Set("langpair", languageName(req.SourceLang, "en")+"|"+req.TargetLang)
	if s.email != "" {
		q.Set("de", s.email)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/get?"+q.Encode(), nil)
	if err != nil {
		return fail(result, fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fail(result, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(result, fmt.Errorf("mymemory returned status %d", resp.StatusCode))
	}

	var out myMemoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fail(result, fmt.Errorf("failed to decode response: %w", err))
	}
	if out.ResponseStatus.String() != "200" {
		return fail(result, fmt.Errorf("mymemory error: %s (%s)", out.ResponseDetails, out.ResponseStatus))
	}
	if out.ResponseData.TranslatedText == "" {
		return fail(result, ErrEmptyResponse)
	}

	result.TranslatedText = out.ResponseData.TranslatedText
	result.Confidence = min(max(out.ResponseData.Match, 0), 1)
	return result, nil
}

func (s *MyMemoryService) IsAvailable(context.Context) error {
	return nil
}
