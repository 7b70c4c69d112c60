package translator

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/valpere/docpipe/internal/postprocess"
)

const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiService translates through the Gemini API. The client is created on
// first use since building it needs a context.
type GeminiService struct {
	cfg       ServiceConfig
	model     string
	maxTokens int32

	mu     sync.Mutex
	client *genai.Client
}

func NewGeminiService(cfg ServiceConfig) *GeminiService {
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	maxTokens := int32(4096)
	if cfg.MaxTokens > 0 {
		maxTokens = int32(min(cfg.MaxTokens, math.MaxInt32))
	}
	return &GeminiService{cfg: cfg, model: model, maxTokens: maxTokens}
}

func (s *GeminiService) Name() string {
	return "gemini"
}

func (s *GeminiService) getClient(ctx context.Context) (*genai.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	cc := &genai.ClientConfig{
		APIKey:     s.cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if s.cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: s.cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	s.client = client
	return client, nil
}

func (s *GeminiService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	if s.cfg.APIKey == "" {
		return fail(result, fmt.Errorf("gemini: %w", ErrEmptyAPIKey))
	}
	client, err := s.getClient(ctx)
	if err != nil {
		return fail(result, err)
	}

	// Gemini has no system role here, so the instructions lead the prompt.
	contents := []*genai.Content{genai.NewContentFromText(completionPrompt(req), genai.RoleUser)}
	resp, err := client.Models.GenerateContent(ctx, s.model, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(0)),
		MaxOutputTokens: s.maxTokens,
	})
	if err != nil {
		return fail(result, fmt.Errorf("request failed: %w", err))
	}

	text := postprocess.Clean(resp.Text())
	if text == "" {
		return fail(result, ErrEmptyResponse)
	}
	result.TranslatedText = text
	result.Confidence = 0.7
	result.Metadata = map[string]string{"model": s.model}
	if usage := resp.UsageMetadata; usage != nil {
		result.Metadata["prompt_tokens"] = strconv.Itoa(int(usage.PromptTokenCount))
		result.Metadata["completion_tokens"] = strconv.Itoa(int(usage.CandidatesTokenCount))
	}
	return result, nil
}

func (s *GeminiService) IsAvailable(context.Context) error {
	if s.cfg.APIKey == "" {
		return fmt.Errorf("gemini: %w", ErrEmptyAPIKey)
	}
	return nil
}
