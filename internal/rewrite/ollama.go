package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/raaihank/report-sentinel/internal/config"
)

type ollamaRequest struct {
	Model   string        `json:"model"`
	System  string        `json:"system,omitempty"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Ollama calls a local Ollama server's generate endpoint
type Ollama struct {
	httpClient  *http.Client
	url         string
	model       string
	maxTokens   int
	temperature float64
}

// NewOllama creates an Ollama provider. Deadlines come from the caller's
// context, so the HTTP client itself has no timeout.
func NewOllama(cfg config.RewriteConfig) (*Ollama, error) {
	if cfg.Ollama.URL == "" {
		return nil, fmt.Errorf("ollama url is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}

	return &Ollama{
		httpClient:  &http.Client{},
		url:         strings.TrimRight(cfg.Ollama.URL, "/") + "/api/generate",
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (p *Ollama) Name() string { return "ollama/" + p.model }

func (p *Ollama) Rewrite(ctx context.Context, redactedText string, in Instructions) (string, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:  p.model,
		System: in.System,
		Prompt: redactedText,
		Options: ollamaOptions{
			Temperature: p.temperature,
			NumPredict:  p.maxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read ollama response: %w", err)
	}

	var out ollamaResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("ollama returned status %d with invalid body: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, out.Error)
	}

	content := strings.TrimSpace(out.Response)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
