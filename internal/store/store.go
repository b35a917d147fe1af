// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/iamibadd/survey-agent/internal/domain"
)

var (
	// ErrNotFound is returned when a session does not exist or is no longer writable.
	ErrNotFound = errors.New("session not found")
	// ErrAlreadyDeleted is returned when deleting a session that is already deleted.
	ErrAlreadyDeleted = errors.New("session already deleted")
)

// History is the bounded chat history of a session.
type History interface {
	// AppendMessage persists one turn and returns its id. Whitespace-only
	// text is ignored and yields id 0.
	AppendMessage(ctx context.Context, sessionID int64, role domain.Role, text string) (int64, error)

	// ReadAllMessages returns the full history in append order.
	ReadAllMessages(ctx context.Context, sessionID int64) ([]domain.Message, error)

	// ReadRecentMessages returns the last limit turns in append order.
	ReadRecentMessages(ctx context.Context, sessionID int64, limit int) ([]domain.Message, error)

	// ReadMessagesBefore returns the last limit turns with id below beforeID,
	// in append order.
	ReadMessagesBefore(ctx context.Context, sessionID, beforeID int64, limit int) ([]domain.Message, error)

	// ClearMessages removes the history. Failures are logged, not returned.
	ClearMessages(ctx context.Context, sessionID int64)
}

// Repository defines the interface for persisting sessions and their interests.
type Repository interface {
	// CreateSession inserts a session and assigns its ID.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession returns the session, deleted or not, or nil if it never existed.
	GetSession(ctx context.Context, id int64) (*domain.Session, error)

	// ListSessions returns non-deleted sessions, newest first.
	ListSessions(ctx context.Context) ([]*domain.Session, error)

	// SetPaused toggles the paused flag on a non-deleted session.
	// It reports false when no such session exists.
	SetPaused(ctx context.Context, id int64, paused bool) (bool, error)

	// MarkDeleted soft-deletes a session and its interests in one transaction.
	MarkDeleted(ctx context.Context, id int64) error

	// ListInterests returns the live interests of a session by confidence, highest first.
	ListInterests(ctx context.Context, sessionID int64) ([]domain.Interest, error)

	// ReplaceInterests swaps the session's interest set atomically.
	ReplaceInterests(ctx context.Context, sessionID int64, interests []domain.Interest) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
