package collab

import "github.com/sirupsen/logrus"

// PresenceNotifier reports a room's member count to its members.
type PresenceNotifier struct {
	registry *Registry
	router   *Router
}

func NewPresenceNotifier(registry *Registry, router *Router) *PresenceNotifier {
	return &PresenceNotifier{registry: registry, router: router}
}

// Notify emits one presence event for room. The count and the recipients come
// from the same registry snapshot.
func (p *PresenceNotifier) Notify(room string) {
	members := p.registry.Members(room)
	presence := Presence{Room: room, Count: len(members)}

	logrus.WithFields(logrus.Fields{
		"room":  room,
		"count": presence.Count,
	}).Debug("Presence changed")

	p.router.deliverTo(room, members, EventPresence, presence)
}
