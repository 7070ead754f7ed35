// Package live implements the client side of the live-event channel: one
// WebSocket connection per event, a reducer over server-pushed frames, and a
// small command surface for submitting questions, upvoting and reacting.
package live

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/adamdasovich/goldventure-live/internal/models"
)

// Frame is the envelope for every message on the live-event channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound frame types (server -> client).
const (
	FrameSnapshot          = "snapshot"
	FrameQuestionCreated   = "question.created"
	FrameQuestionUpvoted   = "question.upvoted"
	FrameQuestionUpdated   = "question.updated"
	FrameParticipantJoined = "participant.joined"
	FrameParticipantLeft   = "participant.left"
	FrameReactionSent      = "reaction.sent"
)

// Outbound frame types (client -> server).
const (
	FrameQuestionSubmit = "question.submit"
	FrameQuestionUpvote = "question.upvote"
	FrameReactionSend   = "reaction.send"
)

// CloseUnauthorized is the WebSocket close code the server sends when the
// presented token is rejected. Clients treat it as fatal and do not retry.
const CloseUnauthorized = 4401

// SnapshotData is the full-state payload sent on connect and after reconnect.
// It replaces all local collections wholesale; reactions are not included.
type SnapshotData struct {
	Event        models.Event         `json:"event"`
	Questions    []models.Question    `json:"questions"`
	Participants []models.Participant `json:"participants"`
}

// QuestionUpvotedData carries the server-tallied upvote total for a question.
type QuestionUpvotedData struct {
	ID      uuid.UUID `json:"id"`
	Upvotes int       `json:"upvotes"`
}

// QuestionUpdatedData carries a partial update to a question. Nil fields are
// left untouched on the client.
type QuestionUpdatedData struct {
	ID         uuid.UUID              `json:"id"`
	Status     *models.QuestionStatus `json:"status,omitempty"`
	IsFeatured *bool                  `json:"is_featured,omitempty"`
}

// ParticipantLeftData identifies the user removed from the roster.
type ParticipantLeftData struct {
	ID uuid.UUID `json:"id"`
}

// QuestionSubmitData is the payload of a question.submit command.
type QuestionSubmitData struct {
	Content string `json:"content"`
}

// QuestionUpvoteData is the payload of a question.upvote command.
type QuestionUpvoteData struct {
	QuestionID uuid.UUID `json:"question_id"`
}

// ReactionSendData is the payload of a reaction.send command.
type ReactionSendData struct {
	Type models.ReactionType `json:"reaction_type"`
}

// NewFrame builds a frame with a marshaled payload.
func NewFrame(event string, payload interface{}) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: data}, nil
}
