package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iamibadd/survey-agent/internal/domain"
	"github.com/iamibadd/survey-agent/internal/llm"
	"github.com/iamibadd/survey-agent/internal/prompts"
	"github.com/iamibadd/survey-agent/internal/store"
)

// Orchestrator runs one conversation turn: it persists the user turn, shows the
// model a bounded window of recent history, and persists the reply.
type Orchestrator struct {
	history    store.History
	model      llm.Model
	prompts    prompts.Set
	maxHistory int
	log        ConversationLogger
}

// NewOrchestrator creates an Orchestrator. maxHistory <= 0 selects DefaultMaxHistory.
func NewOrchestrator(history store.History, model llm.Model, set prompts.Set, maxHistory int, log ConversationLogger) *Orchestrator {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if log == nil {
		log = noopConversationLogger{}
	}
	return &Orchestrator{
		history:    history,
		model:      model,
		prompts:    set,
		maxHistory: maxHistory,
		log:        log,
	}
}

// Reply answers in for the given session. The user turn is durable before the
// model is called; on model failure nothing is stored for the agent and the
// returned error wraps ErrModelUnavailable.
func (o *Orchestrator) Reply(ctx context.Context, sessionID int64, purpose string, in UserInput) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	text := strings.TrimSpace(in.Text)

	userID, err := o.history.AppendMessage(ctx, sessionID, domain.RoleUser, text)
	if err != nil {
		return "", fmt.Errorf("persist user turn: %w", err)
	}
	o.log.Log(ConversationLogEvent{
		SessionID:  sessionID,
		Direction:  DirectionInbound,
		EventType:  EventUserMessage,
		ContentRaw: text,
	})

	// Only turns stored before ours; concurrent sends land after userID.
	window, err := o.history.ReadMessagesBefore(ctx, sessionID, userID, o.maxHistory)
	if err != nil {
		return "", fmt.Errorf("read context window: %w", err)
	}

	turns := make([]llm.Turn, 0, len(window)+1)
	for _, msg := range window {
		turns = append(turns, llm.Turn{Role: msg.Role, Content: msg.Content})
	}
	turns = append(turns, llm.Turn{Role: domain.RoleUser, Content: text})

	result, err := o.model.Complete(ctx, llm.Prompt{
		System: o.prompts.SystemFor(purpose),
		Turns:  turns,
	})
	if err != nil {
		slog.Error("Conversation model call failed", "session_id", sessionID, "error", err)
		o.log.Log(ConversationLogEvent{
			SessionID: sessionID,
			Direction: DirectionOutbound,
			EventType: EventModelError,
			Meta:      map[string]any{"error": err.Error()},
		})
		return "", fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	reply := strings.TrimSpace(result.Text)
	if _, err := o.history.AppendMessage(ctx, sessionID, domain.RoleAgent, reply); err != nil {
		return "", fmt.Errorf("persist agent turn: %w", err)
	}
	o.log.Log(ConversationLogEvent{
		SessionID:  sessionID,
		Direction:  DirectionOutbound,
		EventType:  EventAgentMessage,
		ContentRaw: reply,
		Meta:       map[string]any{"context_turns": len(window)},
	})

	return reply, nil
}
