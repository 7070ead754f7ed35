package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxQuestionLength is the maximum question content length in runes.
const MaxQuestionLength = 1000

// QuestionStatus is the moderation state of an audience question.
type QuestionStatus string

const (
	QuestionPending  QuestionStatus = "pending"
	QuestionApproved QuestionStatus = "approved"
	QuestionAnswered QuestionStatus = "answered"
)

// Question represents an audience question in a live event. Upvotes is the
// server-tallied total; clients never count votes themselves.
type Question struct {
	ID         uuid.UUID      `json:"id"`
	EventID    uuid.UUID      `json:"event_id"`
	Author     Participant    `json:"author"`
	Content    string         `json:"content"`
	Status     QuestionStatus `json:"status"`
	Upvotes    int            `json:"upvotes"`
	IsFeatured bool           `json:"is_featured"`
	CreatedAt  time.Time      `json:"created_at"`
}
