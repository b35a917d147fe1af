// Package agent implements the conversational survey agent.
package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iamibadd/survey-agent/internal/domain"
)

var (
	// ErrSessionNotFound means the session does not exist or was deleted.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionUnavailable means the session cannot take messages: absent, paused or deleted.
	ErrSessionUnavailable = errors.New("session not found or paused")
	// ErrAlreadyDeleted is returned when deleting a deleted session.
	ErrAlreadyDeleted = errors.New("session already deleted")
	// ErrModelUnavailable wraps any failure of the conversation model call.
	ErrModelUnavailable = errors.New("language model unavailable")
	// ErrInferenceDegraded marks an interest inference that fell back to an empty result.
	ErrInferenceDegraded = errors.New("interest inference degraded")
	// ErrInvalidInput is returned for requests that fail validation.
	ErrInvalidInput = errors.New("invalid input")
)

// DefaultMaxHistory is the number of recent turns shown to the model.
const DefaultMaxHistory = 15

// UserInput is a single inbound user turn.
type UserInput struct {
	Text string `json:"message"`
}

// Validate rejects blank input.
func (in UserInput) Validate() error {
	if strings.TrimSpace(in.Text) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	return nil
}

// StartRequest opens a new survey session.
type StartRequest struct {
	Prompt  string
	Consent bool
}

// StartResult is the outcome of Start. Session is set whenever the session was
// created, even if the opening message failed.
type StartResult struct {
	Session        *domain.Session
	InitialMessage string
}

// SendResult is the outcome of Send.
type SendResult struct {
	AgentMessage string
	Interests    []domain.Interest
	// InferenceDegraded is true when inference failed and the previous interests were kept.
	InferenceDegraded bool
}

// Inference is the result of one interest extraction. Err is nil on success,
// including a legitimately empty result, and wraps ErrInferenceDegraded otherwise.
type Inference struct {
	Interests []domain.Interest
	Err       error
}

// Degraded reports whether the inference failed and fell back to empty.
func (i Inference) Degraded() bool {
	return i.Err != nil
}

// Summary is the result of summarizing a prompt. On failure Text holds a
// descriptive message and Err the cause.
type Summary struct {
	Text string
	Err  error
}
