package collab

import (
	"sync"

	"github.com/sirupsen/logrus"
)

type connection struct {
	mu     sync.Mutex
	closed bool
}

// Hub drives each connection through connect, join, leave and disconnect
// and keeps the registry in step with it.
//
// Requests without a room are dropped silently: a client bug should not tear
// down a live connection. Events for connections that are unknown or already
// disconnected are dropped the same way.
type Hub struct {
	mu    sync.Mutex
	conns map[ConnID]*connection

	registry *Registry
	router   *Router
	presence *PresenceNotifier
	relay    *EditRelay
	metrics  Metrics
}

type Option func(*Hub)

func WithMetrics(m Metrics) Option {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

func NewHub(sender Sender, opts ...Option) *Hub {
	h := &Hub{
		conns:    make(map[ConnID]*connection),
		registry: NewRegistry(),
		metrics:  noopMetrics{},
	}
	for _, opt := range opts {
		opt(h)
	}

	h.router = NewRouter(h.registry, sender, h.metrics)
	h.presence = NewPresenceNotifier(h.registry, h.router)
	h.relay = NewEditRelay(h.router)
	return h
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// Connect registers a new connection. Connecting an id twice is a no-op.
func (h *Hub) Connect(id ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[id]; ok {
		return
	}
	h.conns[id] = &connection{}
	h.metrics.ConnectionOpened()
	logrus.WithField("conn_id", id).Debug("Connection opened")
}

// lookup returns the live connection for id, locked. The caller must unlock.
func (h *Hub) lookup(id ConnID) *connection {
	h.mu.Lock()
	c, ok := h.conns[id]
	h.mu.Unlock()
	if !ok {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	return c
}

// Join adds the connection to room, then announces the new count and the
// joiner's display name to every member, the joiner included.
func (h *Hub) Join(id ConnID, room, username string) {
	if room == "" {
		h.drop(id, EventJoinRoom, "missing room")
		return
	}
	c := h.lookup(id)
	if c == nil {
		h.drop(id, EventJoinRoom, "connection closed")
		return
	}
	h.registry.Add(room, id)
	c.mu.Unlock()

	if username == "" {
		username = DefaultUsername
	}
	logrus.WithFields(logrus.Fields{
		"conn_id":  id,
		"room":     room,
		"username": username,
	}).Info("Connection joined room")

	h.presence.Notify(room)
	h.router.Deliver(room, EventUserJoined, UserJoined{Username: username})
}

// Leave removes the connection from room and announces the new count.
// Leaving a room the connection never joined still sends presence to the
// room's members; this is intended and must not be filtered.
func (h *Hub) Leave(id ConnID, room string) {
	if room == "" {
		h.drop(id, EventLeaveRoom, "missing room")
		return
	}
	c := h.lookup(id)
	if c == nil {
		h.drop(id, EventLeaveRoom, "connection closed")
		return
	}
	h.registry.Remove(room, id)
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"conn_id": id,
		"room":    room,
	}).Info("Connection left room")

	h.presence.Notify(room)
}

// Edit relays a patch from the connection to everyone in room.
func (h *Hub) Edit(id ConnID, room string, patch any, username string) {
	if room == "" {
		h.drop(id, EventNotebookEdit, "missing room")
		return
	}
	c := h.lookup(id)
	if c == nil {
		h.drop(id, EventNotebookEdit, "connection closed")
		return
	}
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"conn_id": id,
		"room":    room,
	}).Debug("Relaying notebook patch")

	h.relay.Relay(room, patch, username)
}

// Disconnect tears the connection down and sends one presence event to each
// room it had joined. Repeated calls are no-ops.
func (h *Hub) Disconnect(id ConnID) {
	h.mu.Lock()
	c, ok := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()
	if !ok {
		return
	}

	c.mu.Lock()
	c.closed = true
	left := h.registry.RemoveFromAll(id)
	c.mu.Unlock()

	h.metrics.ConnectionClosed()
	logrus.WithFields(logrus.Fields{
		"conn_id": id,
		"rooms":   left,
	}).Info("Connection closed")

	for _, room := range left {
		h.presence.Notify(room)
	}
}

func (h *Hub) drop(id ConnID, event, reason string) {
	h.metrics.InboundDropped(event, reason)
	logrus.WithFields(logrus.Fields{
		"conn_id": id,
		"event":   event,
		"reason":  reason,
	}).Debug("Dropped inbound event")
}
