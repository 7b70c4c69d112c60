package translator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/valpere/docpipe/internal/postprocess"
)

const (
	DefaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	DefaultOpenRouterModel = "meta-llama/llama-3.1-8b-instruct:free"
)

// OpenRouterService talks to OpenRouter, or any OpenAI-compatible endpoint,
// through the go-openai client.
type OpenRouterService struct {
	client    *openai.Client
	model     string
	maxTokens int
	hasKey    bool
}

// NewOpenRouterService creates an OpenRouter backend. A missing API key is
// reported on first use.
func NewOpenRouterService(cfg ServiceConfig) *OpenRouterService {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = DefaultOpenRouterURL
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenRouterModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &OpenRouterService{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     model,
		maxTokens: maxTokens,
		hasKey:    cfg.APIKey != "",
	}
}

func (s *OpenRouterService) Name() string {
	return "openrouter"
}

func (s *OpenRouterService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	if !s.hasKey {
		return fail(result, fmt.Errorf("openrouter: %w", ErrEmptyAPIKey))
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req)},
			{Role: openai.ChatMessageRoleUser, Content: req.Text},
		},
		MaxTokens:   s.maxTokens,
		Temperature: 0,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return fail(result, fmt.Errorf("openrouter returned status %d: %w", apiErr.HTTPStatusCode, err))
		}
		return fail(result, fmt.Errorf("request failed: %w", err))
	}
	if len(resp.Choices) == 0 {
		return fail(result, ErrEmptyResponse)
	}

	text := postprocess.Clean(resp.Choices[0].Message.Content)
	if text == "" {
		return fail(result, ErrEmptyResponse)
	}
	result.TranslatedText = text
	result.Confidence = 0.7
	result.Metadata = map[string]string{
		"model":             s.model,
		"prompt_tokens":     strconv.Itoa(resp.Usage.PromptTokens),
		"completion_tokens": strconv.Itoa(resp.Usage.CompletionTokens),
	}
	return result, nil
}

func (s *OpenRouterService) IsAvailable(context.Context) error {
	if !s.hasKey {
		return fmt.Errorf("openrouter: %w", ErrEmptyAPIKey)
	}
	return nil
}
