package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iamibadd/survey-agent/internal/domain"
	"github.com/iamibadd/survey-agent/internal/llm"
	"github.com/iamibadd/survey-agent/internal/prompts"
)

// Summarizer turns a free-form prompt into a short description.
type Summarizer struct {
	model   llm.Model
	prompts prompts.Set
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(model llm.Model, set prompts.Set) *Summarizer {
	return &Summarizer{model: model, prompts: set}
}

// Summarize makes one model call. On failure the returned Summary carries a
// descriptive Text and the cause in Err.
func (s *Summarizer) Summarize(ctx context.Context, raw string) Summary {
	result, err := s.model.Complete(ctx, llm.Prompt{
		Turns: []llm.Turn{{Role: domain.RoleUser, Content: s.prompts.SummaryFor(raw)}},
	})
	if err == nil && strings.TrimSpace(result.Text) == "" {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		slog.Warn("Prompt summarization failed", "error", err)
		return Summary{Text: fmt.Sprintf("summary unavailable: %v", err), Err: err}
	}
	return Summary{Text: strings.TrimSpace(result.Text)}
}
