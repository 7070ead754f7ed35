package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adamdasovich/goldventure-live/internal/models"
	"github.com/adamdasovich/goldventure-live/pkg/response"
)

// TokenRequest is the body for POST /auth/token.
type TokenRequest struct {
	Username string `json:"username" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
	Role     string `json:"role"`
}

// Handler issues development tokens. There is no user store behind it; real
// sessions come from the platform backend, which signs with the same secret.
type Handler struct {
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(jwt *JWTService, logger *zap.Logger) *Handler {
	return &Handler{jwt: jwt, logger: logger}
}

// Token handles POST /auth/token.
func (h *Handler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	role := models.Role(req.Role)
	if req.Role == "" {
		role = models.RoleAudience
	}
	if !role.Valid() {
		response.BadRequest(c, "invalid role")
		return
	}

	userID := uuid.New()
	token, err := h.jwt.Generate(userID, req.Username, req.FullName, string(role))
	if err != nil {
		h.logger.Error("token generation failed", zap.Error(err))
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, gin.H{"token": token, "user_id": userID, "role": role})
}
