package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iamibadd/survey-agent/internal/domain"
	"github.com/iamibadd/survey-agent/internal/llm"
	"github.com/iamibadd/survey-agent/internal/prompts"
	"github.com/iamibadd/survey-agent/internal/store"
)

// InterestEngine extracts interest signals from a session transcript. It never
// persists; callers replace the stored set with the result.
type InterestEngine struct {
	history store.History
	model   llm.Model
	prompts prompts.Set
	log     ConversationLogger
}

// NewInterestEngine creates an InterestEngine.
func NewInterestEngine(history store.History, model llm.Model, set prompts.Set, log ConversationLogger) *InterestEngine {
	if log == nil {
		log = noopConversationLogger{}
	}
	return &InterestEngine{history: history, model: model, prompts: set, log: log}
}

// Infer reads the full history of a session and asks the model for interests.
// Failures are logged and reported through Inference.Err, never returned.
func (e *InterestEngine) Infer(ctx context.Context, sessionID int64) Inference {
	messages, err := e.history.ReadAllMessages(ctx, sessionID)
	if err != nil {
		return e.degrade(sessionID, fmt.Errorf("read history: %w", err))
	}
	if len(messages) == 0 {
		return Inference{Interests: []domain.Interest{}}
	}

	result, err := e.model.Complete(ctx, llm.Prompt{
		Turns: []llm.Turn{{
			Role:    domain.RoleUser,
			Content: e.prompts.InferFor(RenderTranscript(messages)),
		}},
	})
	if err != nil {
		return e.degrade(sessionID, fmt.Errorf("model call: %w", err))
	}

	interests, err := ParseInterests(result.Text)
	if err != nil {
		return e.degrade(sessionID, err)
	}

	e.log.Log(ConversationLogEvent{
		SessionID: sessionID,
		Direction: DirectionOutbound,
		EventType: EventInterests,
		Meta:      map[string]any{"count": len(interests)},
	})
	return Inference{Interests: interests}
}

func (e *InterestEngine) degrade(sessionID int64, cause error) Inference {
	slog.Warn("Interest inference degraded", "session_id", sessionID, "error", cause)
	return Inference{
		Interests: []domain.Interest{},
		Err:       fmt.Errorf("%w: %w", ErrInferenceDegraded, cause),
	}
}

// RenderTranscript flattens messages into "Human: ..." and "AI: ..." lines.
func RenderTranscript(messages []domain.Message) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		if msg.Role == domain.RoleAgent {
			b.WriteString("AI: ")
		} else {
			b.WriteString("Human: ")
		}
		b.WriteString(msg.Content)
	}
	return b.String()
}

var errNoJSON = errors.New("no JSON array in model output")

// ParseInterests decodes model output into interests. Code fences are stripped,
// an {"interests": [...]} wrapper is accepted, confidences are clamped to [0, 1]
// and unnamed items are dropped.
func ParseInterests(raw string) ([]domain.Interest, error) {
	text := stripCodeFence(raw)
	if text == "" {
		return nil, errNoJSON
	}

	var items []domain.Interest
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		var wrapped struct {
			Interests []domain.Interest `json:"interests"`
		}
		if werr := json.Unmarshal([]byte(text), &wrapped); werr != nil || wrapped.Interests == nil {
			return nil, fmt.Errorf("parse interests: %w", err)
		}
		items = wrapped.Interests
	}

	interests := make([]domain.Interest, 0, len(items))
	for _, item := range items {
		item.Name = strings.TrimSpace(item.Name)
		if item.Name == "" {
			continue
		}
		item.Confidence = min(max(item.Confidence, 0), 1)
		item.Rationale = strings.TrimSpace(item.Rationale)
		interests = append(interests, item)
	}
	return interests, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
