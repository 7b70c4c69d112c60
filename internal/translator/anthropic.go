package translator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/valpere/docpipe/internal/postprocess"
)

const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicService uses the Anthropic Messages API.
type AnthropicService struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	hasKey    bool
}

// NewAnthropicService creates an Anthropic backend. A missing API key is
// reported on first use.
func NewAnthropicService(cfg ServiceConfig) *AnthropicService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicService{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		hasKey:    cfg.APIKey != "",
	}
}

func (s *AnthropicService) Name() string {
	return "anthropic"
}

func (s *AnthropicService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	if !s.hasKey {
		return fail(result, fmt.Errorf("anthropic: %w", ErrEmptyAPIKey))
	}

	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(s.model),
		MaxTokens:   s.maxTokens,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt(req)}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Text))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return fail(result, fmt.Errorf("anthropic returned status %d: %w", apiErr.StatusCode, err))
		}
		return fail(result, fmt.Errorf("request failed: %w", err))
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	text := postprocess.Clean(sb.String())
	if text == "" {
		return fail(result, ErrEmptyResponse)
	}

	result.TranslatedText = text
	result.Confidence = 0.8
	result.Metadata = map[string]string{
		"model":         s.model,
		"input_tokens":  strconv.FormatInt(msg.Usage.InputTokens, 10),
		"output_tokens": strconv.FormatInt(msg.Usage.OutputTokens, 10),
	}
	return result, nil
}

func (s *AnthropicService) IsAvailable(context.Context) error {
	if !s.hasKey {
		return fmt.Errorf("anthropic: %w", ErrEmptyAPIKey)
	}
	return nil
}
