// Package events fans committed complaint events out to live subscribers:
// dashboard websockets and the ops notifier.
package events

import (
	"context"
	"errors"
	"sync/atomic"

	"civicdesk/backend/internal/models"

	"go.uber.org/zap"
)

// ErrHubClosed is returned when publishing to a hub that has stopped.
var ErrHubClosed = errors.New("events: hub is closed")

// Subscriber is any consumer of complaint events (websocket, Telegram, ...).
type Subscriber interface {
	ID() string
	// Wants reports whether the subscriber may see ev.
	Wants(ev models.ComplaintEvent) bool
	// Deliver hands ev over without blocking. It returns false when the
	// subscriber cannot keep up; the hub then drops it.
	Deliver(ev models.ComplaintEvent) bool
	// Close releases the subscriber. The hub calls it once, on removal.
	Close()
}

// Visible reports whether actor may see ev: staff see everything, citizens
// their own complaints, workers the complaints assigned to them or just
// reassigned away from them.
func Visible(actor models.Actor, ev models.ComplaintEvent) bool {
	switch actor.Role {
	case models.RoleOfficer, models.RoleAdmin:
		return true
	case models.RoleCitizen:
		return ev.CitizenID != "" && ev.CitizenID == actor.UserID
	case models.RoleWorker:
		return actor.UserID != "" && (ev.WorkerID == actor.UserID || ev.PreviousWorkerID == actor.UserID)
	}
	return false
}

// Hub owns the subscriber set. All changes go through its Run loop.
type Hub struct {
	subscribers map[string]Subscriber
	register    chan Subscriber
	unregister  chan Subscriber
	broadcast   chan models.ComplaintEvent
	done        chan struct{}
	size        atomic.Int64
	logger      *zap.Logger
}

// NewHub builds a hub; call Run to start it.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subscribers: make(map[string]Subscriber),
		register:    make(chan Subscriber),
		unregister:  make(chan Subscriber),
		broadcast:   make(chan models.ComplaintEvent, 64),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run dispatches until ctx is cancelled, then closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for id, s := range h.subscribers {
			delete(h.subscribers, id)
			s.Close()
		}
		h.size.Store(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case s := <-h.register:
			if old, ok := h.subscribers[s.ID()]; ok {
				old.Close()
			}
			h.subscribers[s.ID()] = s
			h.size.Store(int64(len(h.subscribers)))
			h.logger.Debug("subscriber registered", zap.String("subscriber", s.ID()))

		case s := <-h.unregister:
			if current, ok := h.subscribers[s.ID()]; ok && current == s {
				delete(h.subscribers, s.ID())
				s.Close()
				h.size.Store(int64(len(h.subscribers)))
				h.logger.Debug("subscriber unregistered", zap.String("subscriber", s.ID()))
			}

		case ev := <-h.broadcast:
			h.dispatch(ev)
		}
	}
}

func (h *Hub) dispatch(ev models.ComplaintEvent) {
	for id, s := range h.subscribers {
		if !s.Wants(ev) {
			continue
		}
		if !s.Deliver(ev) {
			h.logger.Warn("dropping slow subscriber", zap.String("subscriber", id))
			delete(h.subscribers, id)
			s.Close()
		}
	}
	h.size.Store(int64(len(h.subscribers)))
}

// Register adds s. A subscriber with the same ID is replaced.
func (h *Hub) Register(s Subscriber) error {
	select {
	case h.register <- s:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// Unregister removes s if it is still registered.
func (h *Hub) Unregister(s Subscriber) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Publish queues ev for every interested subscriber.
func (h *Hub) Publish(ctx context.Context, ev models.ComplaintEvent) error {
	select {
	case h.broadcast <- ev:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len is the number of registered subscribers.
func (h *Hub) Len() int { return int(h.size.Load()) }
