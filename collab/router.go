package collab

import "github.com/sirupsen/logrus"

// Router delivers events to the current members of a room.
type Router struct {
	registry *Registry
	sender   Sender
	metrics  Metrics
}

func NewRouter(registry *Registry, sender Sender, metrics Metrics) *Router {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Router{registry: registry, sender: sender, metrics: metrics}
}

// Deliver sends payload tagged with event to every member of room at the
// instant of the call. Per-recipient failures are logged and dropped.
func (r *Router) Deliver(room, event string, payload any) {
	r.deliverTo(room, r.registry.Members(room), event, payload)
}

func (r *Router) deliverTo(room string, members []ConnID, event string, payload any) {
	for _, conn := range members {
		if err := r.sender.Send(conn, event, payload); err != nil {
			r.metrics.DeliveryFailed(event)
			logrus.WithFields(logrus.Fields{
				"room":    room,
				"conn_id": conn,
				"event":   event,
				"error":   err,
			}).Debug("Dropped delivery to stale recipient")
			continue
		}
		r.metrics.Delivered(event)
	}
}
