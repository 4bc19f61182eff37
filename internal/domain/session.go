package domain

import (
	"time"

	"github.com/soyeahso/promptsmith/internal/profile"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusActive          SessionStatus = "active"
	StatusPromptGenerated SessionStatus = "prompt_generated"
	StatusEnded           SessionStatus = "ended"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPromptGenerated, StatusEnded:
		return true
	}
	return false
}

// Session is a point-in-time copy of a registered session. Callers never
// get a reference to the registry's own record.
type Session struct {
	ID        string            `json:"id"`
	Status    SessionStatus     `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Messages  []ChatMessage     `json:"messages"`
	Profile   profile.Snapshot  `json:"profile"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SessionSummary is the list view of a session.
type SessionSummary struct {
	ID           string        `json:"id"`
	Status       SessionStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	MessageCount int           `json:"message_count"`
	TraitCount   int           `json:"trait_count"`
	Live         bool          `json:"live"`
}

// Summary condenses s.
func (s Session) Summary(live bool) SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		Status:       s.Status,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		MessageCount: len(s.Messages),
		TraitCount:   len(s.Profile.Traits),
		Live:         live,
	}
}
