package models

import "github.com/google/uuid"

// Participant is a user currently connected to a live event.
type Participant struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Username string    `json:"username"`
}
