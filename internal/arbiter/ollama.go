package arbiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/valpere/docpipe/internal/postprocess"
	"github.com/valpere/docpipe/internal/translator"
)

const (
	DefaultModel   = "llama3.2"
	DefaultBaseURL = "http://localhost:11434"
	DefaultTimeout = 60 * time.Second
)

type OllamaArbiter struct {
	model   string
	baseURL string
	client  *http.Client
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// NewOllamaArbiter creates an arbiter backed by a local Ollama model. Empty
// arguments select the defaults.
func NewOllamaArbiter(model, baseURL string, timeout time.Duration) *OllamaArbiter {
	if model == "" {
		model = DefaultModel
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OllamaArbiter{
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Evaluate asks the model to pick or compose the best translation. A single
// candidate is selected without a request.
func (a *OllamaArbiter) Evaluate(ctx context.Context, source, sourceLang, targetLang string, results []translator.ServiceResult) (*EvaluationResult, error) {
	if len(results) == 0 {
		return nil, ErrNoCandidates
	}

	if len(results) == 1 {
		return &EvaluationResult{
			SelectedService: results[0].ServiceName,
			CompositeText:   results[0].TranslatedText,
			Reasoning:       "Only one candidate available",
		}, nil
	}

	body, err := json.Marshal(ollamaRequest{
		Model:   a.model,
		Prompt:  buildArbiterPrompt(source, sourceLang, targetLang, results),
		Stream:  false,
		Format:  "json",
		Options: map[string]any{"temperature": 0},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arbiter request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arbiter returned status %d", resp.StatusCode)
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return parseArbiterResponse(ollamaResp.Response)
}

func buildArbiterPrompt(source, sourceLang, targetLang string, results []translator.ServiceResult) string {
	var sb strings.Builder
	sb.WriteString("You are a professional translation evaluator.\n")
	fmt.Fprintf(&sb, "Given the original text in %s:\n%q\n", sourceLang, source)
	fmt.Fprintf(&sb, "\nAnd these translations to %s:\n", targetLang)

	names := make([]string, 0, len(results))
	for i, r := range results {
		fmt.Fprintf(&sb, "  %d. [%s]: %q\n", i+1, r.ServiceName, r.TranslatedText)
		names = append(names, r.ServiceName)
	}

	fmt.Fprintf(&sb, `
Select the best translation or compose an improved one from the available options.
Respond ONLY in JSON:
{
  "selected_service": "%s|%s",
  "final_text": "...",
  "reasoning": "..."
}
`, strings.Join(names, "|"), Composite)

	return sb.String()
}

func parseArbiterResponse(response string) (*EvaluationResult, error) {
	response = strings.TrimSpace(postprocess.StripReasoning(response))
	response = strings.TrimPrefix(response, "```json")
	response = strings.Trim(response, "`\n ")

	var parsed struct {
		SelectedService string `json:"selected_service"`
		FinalText       string `json:"final_text"`
		Reasoning       string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse arbiter response as JSON: %w", err)
	}

	return &EvaluationResult{
		SelectedService: parsed.SelectedService,
		CompositeText:   parsed.FinalText,
		IsComposite:     parsed.SelectedService == Composite,
		Reasoning:       parsed.Reasoning,
	}, nil
}
