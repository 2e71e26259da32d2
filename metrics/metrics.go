package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collab exports the real-time core's activity as Prometheus metrics.
type Collab struct {
	connections prometheus.Gauge
	delivered   *prometheus.CounterVec
	failed      *prometheus.CounterVec
	dropped     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collab {
	c := &Collab{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "notebook",
			Name:      "realtime_connections",
			Help:      "Live real-time connections.",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notebook",
			Name:      "realtime_deliveries_total",
			Help:      "Outbound events handed to a connection.",
		}, []string{"event"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notebook",
			Name:      "realtime_delivery_failures_total",
			Help:      "Outbound events dropped because the recipient was gone.",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notebook",
			Name:      "realtime_inbound_dropped_total",
			Help:      "Inbound events ignored by the core.",
		}, []string{"event", "reason"}),
	}
	reg.MustRegister(c.connections, c.delivered, c.failed, c.dropped)
	return c
}

func (c *Collab) ConnectionOpened() { c.connections.Inc() }

func (c *Collab) ConnectionClosed() { c.connections.Dec() }

func (c *Collab) Delivered(event string) { c.delivered.WithLabelValues(event).Inc() }

func (c *Collab) DeliveryFailed(event string) { c.failed.WithLabelValues(event).Inc() }

func (c *Collab) InboundDropped(event, reason string) {
	c.dropped.WithLabelValues(event, reason).Inc()
}

// Handler exposes the metrics gathered by g at /metrics.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
