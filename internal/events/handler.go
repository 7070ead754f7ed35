package events

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/adamdasovich/goldventure-live/internal/models"
	"github.com/adamdasovich/goldventure-live/pkg/response"
)

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Format      string `json:"format" binding:"required,oneof=video text"`
	VideoURL    string `json:"video_url"`
	StartsAt    string `json:"starts_at" binding:"required"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	registry *Registry
}

// NewHandler creates an events handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// Create handles POST /events (admin only).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		response.BadRequest(c, "invalid starts_at")
		return
	}
	ev := h.registry.Create(models.Event{
		Title:       req.Title,
		Description: req.Description,
		Format:      models.EventFormat(req.Format),
		VideoURL:    req.VideoURL,
		StartsAt:    startsAt,
	})
	response.Created(c, ev)
}

// List handles GET /events.
func (h *Handler) List(c *gin.Context) {
	response.OK(c, gin.H{"events": h.registry.List()})
}

// GetByID handles GET /events/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	ev, err := h.registry.Get(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		response.Internal(c, "failed to load event")
		return
	}
	response.OK(c, ev)
}
