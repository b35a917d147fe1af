package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iamibadd/survey-agent/internal/domain"
	"github.com/iamibadd/survey-agent/internal/llm"
	"github.com/iamibadd/survey-agent/internal/prompts"
	"github.com/iamibadd/survey-agent/internal/store"
)

// Page sizes for Messages.
const (
	DefaultMessageLimit = 100
	maxMessageLimit     = 1000
)

// ServiceConfig wires the collaborators of a Service.
type ServiceConfig struct {
	Repo       store.Repository
	History    store.History
	Model      llm.Model
	Prompts    prompts.Set
	MaxHistory int
	Log        ConversationLogger
}

// Service manages the survey session lifecycle.
type Service struct {
	repo       store.Repository
	history    store.History
	chat       *Orchestrator
	interests  *InterestEngine
	summarizer *Summarizer
}

// NewService creates a Service from cfg.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil || cfg.History == nil {
		return nil, errors.New("agent service requires a repository and a history store")
	}
	if cfg.Model == nil {
		return nil, errors.New("agent service requires a language model")
	}
	if cfg.Log == nil {
		cfg.Log = noopConversationLogger{}
	}

	return &Service{
		repo:       cfg.Repo,
		history:    cfg.History,
		chat:       NewOrchestrator(cfg.History, cfg.Model, cfg.Prompts, cfg.MaxHistory, cfg.Log),
		interests:  NewInterestEngine(cfg.History, cfg.Model, cfg.Prompts, cfg.Log),
		summarizer: NewSummarizer(cfg.Model, cfg.Prompts),
	}, nil
}

// Start creates a session and produces the opening agent message. If the
// opening message fails the session is still returned alongside the error.
func (s *Service) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	raw := strings.TrimSpace(req.Prompt)
	if raw == "" {
		return StartResult{}, fmt.Errorf("%w: prompt is required", ErrInvalidInput)
	}

	stored := raw
	if summary := s.summarizer.Summarize(ctx, raw); summary.Err == nil {
		stored = summary.Text
	}

	session := &domain.Session{Prompt: stored, Consent: req.Consent}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return StartResult{}, fmt.Errorf("create session: %w", err)
	}
	slog.Info("Session started", "session_id", session.ID, "consent", session.Consent)

	opening, err := s.chat.Reply(ctx, session.ID, raw, UserInput{Text: raw})
	if err != nil {
		return StartResult{Session: session}, err
	}
	return StartResult{Session: session, InitialMessage: opening}, nil
}

// Send runs one turn for a live session, then refreshes its interests. Inference
// and replacement failures are logged and keep the previous interest set.
func (s *Service) Send(ctx context.Context, sessionID int64, in UserInput) (SendResult, error) {
	if err := in.Validate(); err != nil {
		return SendResult{}, err
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return SendResult{}, fmt.Errorf("load session: %w", err)
	}
	if session == nil || !session.AcceptsMessages() {
		return SendResult{}, ErrSessionUnavailable
	}

	reply, err := s.chat.Reply(ctx, sessionID, session.Prompt, in)
	if err != nil {
		return SendResult{}, err
	}

	result := SendResult{AgentMessage: reply}
	inference := s.interests.Infer(ctx, sessionID)
	if inference.Degraded() {
		result.InferenceDegraded = true
		result.Interests, err = s.repo.ListInterests(ctx, sessionID)
		if err != nil {
			slog.Warn("Failed to load previous interests", "session_id", sessionID, "error", err)
			result.Interests = []domain.Interest{}
		}
		return result, nil
	}

	if err := s.repo.ReplaceInterests(ctx, sessionID, inference.Interests); err != nil {
		slog.Error("Failed to replace interests", "session_id", sessionID, "error", err)
	}
	result.Interests = inference.Interests
	return result, nil
}

// Get returns a live session.
func (s *Service) Get(ctx context.Context, sessionID int64) (*domain.Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil || session.Deleted {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// List returns live sessions, newest first.
func (s *Service) List(ctx context.Context) ([]*domain.Session, error) {
	sessions, err := s.repo.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Pause stops a session from accepting messages.
func (s *Service) Pause(ctx context.Context, sessionID int64) error {
	return s.setPaused(ctx, sessionID, true)
}

// Resume lets a paused session accept messages again.
func (s *Service) Resume(ctx context.Context, sessionID int64) error {
	return s.setPaused(ctx, sessionID, false)
}

func (s *Service) setPaused(ctx context.Context, sessionID int64, paused bool) error {
	found, err := s.repo.SetPaused(ctx, sessionID, paused)
	if err != nil {
		return err
	}
	if !found {
		return ErrSessionNotFound
	}
	slog.Info("Session paused state changed", "session_id", sessionID, "paused", paused)
	return nil
}

// Delete soft-deletes a session with its interests, then clears its history.
func (s *Service) Delete(ctx context.Context, sessionID int64) error {
	err := s.repo.MarkDeleted(ctx, sessionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, store.ErrAlreadyDeleted):
		return ErrAlreadyDeleted
	case err != nil:
		return fmt.Errorf("delete session: %w", err)
	}

	s.history.ClearMessages(ctx, sessionID)
	slog.Info("Session deleted", "session_id", sessionID)
	return nil
}

// Interests returns the current interest set of a live session.
func (s *Service) Interests(ctx context.Context, sessionID int64) ([]domain.Interest, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	interests, err := s.repo.ListInterests(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list interests: %w", err)
	}
	return interests, nil
}

// ReplaceInterests validates and overwrites the interest set of a live session.
func (s *Service) ReplaceInterests(ctx context.Context, sessionID int64, interests []domain.Interest) error {
	for i, interest := range interests {
		if err := interest.Validate(); err != nil {
			return fmt.Errorf("%w: interest %d: %v", ErrInvalidInput, i, err)
		}
	}

	err := s.repo.ReplaceInterests(ctx, sessionID, interests)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("replace interests: %w", err)
	}
	return nil
}

// Messages returns the last limit turns of a live session. limit <= 0 selects
// DefaultMessageLimit. Absent or deleted sessions yield ErrSessionNotFound.
func (s *Service) Messages(ctx context.Context, sessionID int64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	limit = min(limit, maxMessageLimit)

	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	messages, err := s.history.ReadRecentMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	return messages, nil
}
