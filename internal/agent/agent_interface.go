package agent

import (
	"context"

	"github.com/iamibadd/survey-agent/internal/domain"
)

// SessionService is the session lifecycle consumed by the API layer.
type SessionService interface {
	// Start creates a session and produces the opening agent message.
	Start(ctx context.Context, req StartRequest) (StartResult, error)

	// Send runs one conversation turn followed by interest inference.
	Send(ctx context.Context, sessionID int64, in UserInput) (SendResult, error)

	// Get returns a live session.
	Get(ctx context.Context, sessionID int64) (*domain.Session, error)

	// List returns live sessions, newest first.
	List(ctx context.Context) ([]*domain.Session, error)

	// Pause stops a session from accepting messages.
	Pause(ctx context.Context, sessionID int64) error

	// Resume lets a paused session accept messages again.
	Resume(ctx context.Context, sessionID int64) error

	// Delete soft-deletes a session and clears its history.
	Delete(ctx context.Context, sessionID int64) error

	// Interests returns the current interest set.
	Interests(ctx context.Context, sessionID int64) ([]domain.Interest, error)

	// ReplaceInterests overwrites the interest set.
	ReplaceInterests(ctx context.Context, sessionID int64, interests []domain.Interest) error

	// Messages returns the last limit turns of a session.
	Messages(ctx context.Context, sessionID int64, limit int) ([]domain.Message, error)
}

// Ensure Service implements SessionService.
var _ SessionService = (*Service)(nil)
