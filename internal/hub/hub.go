// Package hub implements the server side of the live-event channel: per-event
// rooms holding the authoritative session state, WebSocket session pumps, and
// an optional Redis bridge for cross-instance broadcast.
package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adamdasovich/goldventure-live/internal/events"
	"github.com/adamdasovich/goldventure-live/internal/live"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

// Publisher publishes a frame to other hub instances.
type Publisher interface {
	PublishEventFrame(eventID uuid.UUID, frame live.Frame) error
}

// Subscriber subscribes to an event's channel and invokes handler for every
// frame published by any instance, this one included.
type Subscriber interface {
	SubscribeEvent(eventID uuid.UUID, handler func(frame live.Frame)) (cancel func(), err error)
}

// Hub maintains event id -> room and routes broadcasts. With a Publisher and
// Subscriber configured, frames take one trip through Redis so every instance
// (including the publishing one) delivers them exactly once.
type Hub struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*Room
	subs  map[uuid.UUID]func()

	registry *events.Registry
	logger   *zap.Logger
	pub      Publisher
	sub      Subscriber
}

// New creates a hub over the given event registry. pub and sub may be nil for
// single-instance deployments.
func New(registry *events.Registry, logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	return &Hub{
		rooms:    make(map[uuid.UUID]*Room),
		subs:     make(map[uuid.UUID]func()),
		registry: registry,
		logger:   logger,
		pub:      pub,
		sub:      sub,
	}
}

// Room returns the room for a registered event, creating it on first use.
// Rooms outlive their sessions so questions survive a viewer's reconnect.
func (h *Hub) Room(eventID uuid.UUID) (*Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[eventID]; ok {
		return r, nil
	}
	ev, err := h.registry.Get(eventID)
	if err != nil {
		return nil, err
	}
	r := newRoom(h, ev, h.logger)
	h.rooms[eventID] = r
	return r, nil
}

// register attaches a session to its room, subscribing the room's channel
// when the first session arrives.
func (h *Hub) register(s *session) error {
	r, err := h.Room(s.eventID)
	if err != nil {
		return err
	}
	s.room = r
	first := r.addSession(s)
	if first && h.sub != nil {
		h.mu.Lock()
		if _, ok := h.subs[r.event.ID]; !ok {
			cancel, err := h.sub.SubscribeEvent(r.event.ID, r.deliver)
			if err != nil {
				h.logger.Warn("event subscription failed, falling back to local broadcast",
					zap.String("event_id", r.event.ID.String()), zap.Error(err))
			} else {
				h.subs[r.event.ID] = cancel
				r.setSubscribed(true)
			}
		}
		h.mu.Unlock()
	}
	h.logger.Debug("session joined event",
		zap.String("session_id", s.id), zap.String("event_id", s.eventID.String()))
	return nil
}

// unregister detaches a session, cancelling the room's subscription when the
// last session leaves.
func (h *Hub) unregister(s *session) {
	if s.room == nil {
		return
	}
	empty := s.room.removeSession(s)
	if empty {
		h.mu.Lock()
		if cancel, ok := h.subs[s.room.event.ID]; ok {
			cancel()
			delete(h.subs, s.room.event.ID)
			s.room.setSubscribed(false)
		}
		h.mu.Unlock()
	}
	h.logger.Debug("session left event",
		zap.String("session_id", s.id), zap.String("event_id", s.eventID.String()))
}
