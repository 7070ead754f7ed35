// Package events holds the registry of live speaking events a socket may join.
package events

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adamdasovich/goldventure-live/internal/models"
)

var ErrNotFound = errors.New("event not found")

// Registry is an in-memory store of live events. Event records here are
// channel metadata only; the platform's event catalog lives in its backend.
type Registry struct {
	mu     sync.RWMutex
	events map[uuid.UUID]models.Event
	order  []uuid.UUID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{events: make(map[uuid.UUID]models.Event)}
}

// Create assigns an id and stores the event.
func (r *Registry) Create(ev models.Event) models.Event {
	ev.ID = uuid.New()
	ev.CreatedAt = time.Now().UTC()
	if !ev.Format.Valid() {
		ev.Format = models.EventFormatText
	}
	r.mu.Lock()
	r.events[ev.ID] = ev
	r.order = append(r.order, ev.ID)
	r.mu.Unlock()
	return ev
}

// Get returns an event by id.
func (r *Registry) Get(id uuid.UUID) (models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.events[id]
	if !ok {
		return models.Event{}, ErrNotFound
	}
	return ev, nil
}

// List returns all events in creation order.
func (r *Registry) List() []models.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Event, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.events[id])
	}
	return out
}
