package hub

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/adamdasovich/goldventure-live/internal/events"
	"github.com/adamdasovich/goldventure-live/internal/models"
	"github.com/adamdasovich/goldventure-live/pkg/response"
)

// Handler exposes moderation endpoints over room state. Status and featured
// changes reach connected viewers as question.updated broadcasts.
type Handler struct {
	hub *Hub
}

// NewHandler creates a moderation handler.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// FeatureRequest is the body for PUT /events/:id/questions/:questionId/feature.
type FeatureRequest struct {
	IsFeatured *bool `json:"is_featured" binding:"required"`
}

// ListQuestions handles GET /events/:id/questions (admin/speaker review list).
func (h *Handler) ListQuestions(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	response.OK(c, gin.H{"questions": room.Questions()})
}

// Approve handles PATCH /events/:id/questions/:questionId/approve.
func (h *Handler) Approve(c *gin.Context) {
	h.setStatus(c, models.QuestionApproved)
}

// Answer handles PATCH /events/:id/questions/:questionId/answer.
func (h *Handler) Answer(c *gin.Context) {
	h.setStatus(c, models.QuestionAnswered)
}

// Feature handles PUT /events/:id/questions/:questionId/feature.
func (h *Handler) Feature(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	questionID, err := uuid.Parse(c.Param("questionId"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return
	}
	var req FeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := room.SetFeatured(questionID, *req.IsFeatured); err != nil {
		response.NotFound(c, "question not found")
		return
	}
	response.OK(c, gin.H{"id": questionID, "is_featured": *req.IsFeatured})
}

func (h *Handler) setStatus(c *gin.Context, status models.QuestionStatus) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	questionID, err := uuid.Parse(c.Param("questionId"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return
	}
	if err := room.SetStatus(questionID, status); err != nil {
		response.NotFound(c, "question not found")
		return
	}
	response.OK(c, gin.H{"id": questionID, "status": status})
}

func (h *Handler) room(c *gin.Context) (*Room, bool) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return nil, false
	}
	room, err := h.hub.Room(eventID)
	if err != nil {
		if errors.Is(err, events.ErrNotFound) {
			response.NotFound(c, "event not found")
		} else {
			response.Internal(c, "failed to open event room")
		}
		return nil, false
	}
	return room, true
}
