package domain

import (
	"errors"
	"strings"
)

// Interest is a confidence-scored label inferred from a conversation.
type Interest struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Validate checks the invariants required before an interest is stored.
func (i Interest) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return errors.New("interest name is required")
	}
	if i.Confidence < 0 || i.Confidence > 1 {
		return errors.New("interest confidence must be within [0, 1]")
	}
	return nil
}
