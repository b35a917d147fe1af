// Package llm provides the language-model clients used by the survey agent.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iamibadd/survey-agent/internal/domain"
)

// ErrEmptyResponse is returned when the provider answers without any text.
var ErrEmptyResponse = errors.New("empty model response")

// Turn is one message of the visible conversation.
type Turn struct {
	Role    domain.Role
	Content string
}

// Prompt is a system instruction followed by ordered turns.
type Prompt struct {
	System string
	Turns  []Turn
}

// Result is the text produced by a completion.
type Result struct {
	Text string
}

// Model is a text-completion service. Implementations must be safe for concurrent use.
type Model interface {
	Complete(ctx context.Context, p Prompt) (Result, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, p Prompt) (Result, error)

// Complete calls f(ctx, p).
func (f ModelFunc) Complete(ctx context.Context, p Prompt) (Result, error) {
	return f(ctx, p)
}

// Provider names accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config selects and configures a provider.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	Timeout     time.Duration
}

// New builds the Model for cfg.Provider.
func New(ctx context.Context, cfg Config) (Model, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAI(cfg), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
