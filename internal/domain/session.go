// Package domain contains core domain types for the survey agent.
package domain

import (
	"time"
)

// Session is one user's survey conversation and its metadata.
type Session struct {
	ID        int64     `json:"id"`
	Prompt    string    `json:"prompt"`
	Consent   bool      `json:"consent"`
	Paused    bool      `json:"paused"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionState is the lifecycle state derived from the paused and deleted flags.
type SessionState string

const (
	StateActive  SessionState = "active"
	StatePaused  SessionState = "paused"
	StateDeleted SessionState = "deleted"
)

// State returns the lifecycle state. Deleted wins over paused.
func (s *Session) State() SessionState {
	switch {
	case s.Deleted:
		return StateDeleted
	case s.Paused:
		return StatePaused
	default:
		return StateActive
	}
}

// AcceptsMessages reports whether new turns may be sent to the session.
func (s *Session) AcceptsMessages() bool {
	return s.State() == StateActive
}
