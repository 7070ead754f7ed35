package hub

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/adamdasovich/goldventure-live/internal/auth"
	"github.com/adamdasovich/goldventure-live/internal/live"
	"github.com/adamdasovich/goldventure-live/internal/models"
	"github.com/adamdasovich/goldventure-live/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// session is a single WebSocket connection inside a room.
type session struct {
	id      string
	eventID uuid.UUID
	user    models.Participant
	role    string
	hub     *Hub
	room    *Room
	conn    *websocket.Conn
	send    chan live.Frame
	logger  *zap.Logger
}

// TokenValidator checks a bearer token and returns its claims.
type TokenValidator func(token string) (*auth.Claims, error)

// ServeWS handles GET /ws?event_id=...&token=... . The token is validated
// after the upgrade so a rejection reaches the client as close code 4401,
// which browsers can observe (handshake status codes are hidden from them).
func (h *Hub) ServeWS(validate TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventIDStr := c.Query("event_id")
		if eventIDStr == "" {
			response.BadRequest(c, "event_id required")
			return
		}
		eventID, err := uuid.Parse(eventIDStr)
		if err != nil {
			response.BadRequest(c, "invalid event_id")
			return
		}
		if _, err := h.registry.Get(eventID); err != nil {
			response.NotFound(c, "event not found")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		claims, err := validate(c.Query("token"))
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(live.CloseUnauthorized, "token rejected"),
				time.Now().Add(writeWait))
			_ = conn.Close()
			return
		}

		s := &session{
			id:      uuid.New().String(),
			eventID: eventID,
			user: models.Participant{
				ID:       claims.UserID,
				FullName: claims.FullName,
				Username: claims.Username,
			},
			role:   claims.Role,
			hub:    h,
			conn:   conn,
			send:   make(chan live.Frame, 256),
			logger: h.logger,
		}
		if err := h.register(s); err != nil {
			_ = conn.Close()
			return
		}
		go s.writePump()
		s.readPump()
	}
}

func (s *session) enqueue(f live.Frame) {
	select {
	case s.send <- f:
	default:
		// buffer full, skip
	}
}

func (s *session) readPump() {
	defer func() {
		s.hub.unregister(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(65536)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var f live.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Debug("dropping undecodable command", zap.Error(err))
			continue
		}

		switch f.Event {
		case live.FrameQuestionSubmit:
			var payload live.QuestionSubmitData
			if err := json.Unmarshal(f.Data, &payload); err != nil {
				continue
			}
			if _, err := s.room.SubmitQuestion(s.user, payload.Content); err != nil {
				s.logger.Debug("question rejected", zap.Error(err))
			}
		case live.FrameQuestionUpvote:
			var payload live.QuestionUpvoteData
			if err := json.Unmarshal(f.Data, &payload); err != nil {
				continue
			}
			_ = s.room.Upvote(payload.QuestionID, s.user.ID)
		case live.FrameReactionSend:
			var payload live.ReactionSendData
			if err := json.Unmarshal(f.Data, &payload); err != nil {
				continue
			}
			_ = s.room.React(payload.Type)
		default:
			// ignore
		}
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case f, ok := <-s.send:
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
