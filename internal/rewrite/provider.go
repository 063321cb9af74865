// Package rewrite talks to the language model that restyles a redacted
// report. Every provider receives text that has already been through the
// redactor; nothing in this package sees patient identifiers.
package rewrite

import (
	"context"
	"errors"
	"fmt"

	"github.com/raaihank/report-sentinel/internal/config"
)

// ErrEmptyCompletion is returned when a provider answers without text
var ErrEmptyCompletion = errors.New("provider returned an empty completion")

// Provider rewrites redacted report text. Implementations must not retry:
// a failed call is surfaced to the caller as is.
type Provider interface {
	// Name identifies the provider and model, e.g. "openai/gpt-4o-mini"
	Name() string
	Rewrite(ctx context.Context, redactedText string, in Instructions) (string, error)
}

// Options are the caller's rewrite preferences
type Options struct {
	Style       string `json:"style,omitempty"`
	Restructure bool   `json:"restructure,omitempty"`
	Commentary  bool   `json:"commentary,omitempty"`
	Language    string `json:"language,omitempty"`
}

// Instructions is the system prompt handed to a provider
type Instructions struct {
	System string
}

// New builds the provider selected in the configuration
func New(ctx context.Context, cfg config.RewriteConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg)
	case "ollama":
		return NewOllama(cfg)
	case "bedrock":
		return NewBedrock(ctx, cfg)
	case "static":
		return Static{}, nil
	default:
		return nil, fmt.Errorf("unknown rewrite provider: %s", cfg.Provider)
	}
}
