package models

import (
	"time"

	"github.com/google/uuid"
)

// EventFormat distinguishes video sessions from text-only Q&A sessions.
type EventFormat string

const (
	EventFormatVideo EventFormat = "video"
	EventFormatText  EventFormat = "text"
)

// Valid reports whether f is a known event format.
func (f EventFormat) Valid() bool {
	return f == EventFormatVideo || f == EventFormatText
}

// Event represents a live speaking event (webinar/Q&A) hosted by a company.
type Event struct {
	ID          uuid.UUID   `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Format      EventFormat `json:"format"`
	VideoURL    string      `json:"video_url,omitempty"`
	StartsAt    time.Time   `json:"starts_at"`
	CreatedAt   time.Time   `json:"created_at"`
}
