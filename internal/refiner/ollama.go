package refiner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/valpere/docpipe/internal/postprocess"
)

const (
	DefaultModel   = "llama3.2"
	DefaultBaseURL = "http://localhost:11434"
	DefaultTimeout = 120 * time.Second
)

// OllamaRefiner uses a local Ollama model as an editor for the draft.
type OllamaRefiner struct {
	model   string
	baseURL string
	client  *http.Client
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// NewOllamaRefiner creates a refiner backed by a local Ollama model. Empty
// arguments select the defaults.
func NewOllamaRefiner(model, baseURL string, timeout time.Duration) *OllamaRefiner {
	if model == "" {
		model = DefaultModel
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OllamaRefiner{
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *OllamaRefiner) Refine(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:   r.model,
		Prompt:  buildPrompt(req),
		Stream:  false,
		Options: map[string]any{"temperature": 0},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal refinement request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create refinement request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("refinement request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("refiner returned status %d", resp.StatusCode)
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode refinement response: %w", err)
	}

	refined := postprocess.Clean(out.Response)
	if refined == "" {
		return req.Draft, nil
	}
	return refined, nil
}

func buildPrompt(req Request) string {
	return fmt.Sprintf(`You are an expert %[2]s editor.

You will receive a DRAFT %[2]s translation. Rewrite it so it reads naturally
while keeping the meaning of the original.

ORIGINAL (%[1]s):
%[3]s

DRAFT (%[2]s):
%[4]s

Rules:
- Keep all facts, names and technical terms.
- Keep placeholders such as [PH0] exactly as they are.
- If the draft is already good, return it unchanged.

Output ONLY the refined %[2]s text without explanation.`,
		req.SourceLang, req.TargetLang, req.Source, req.Draft)
}
