package ops

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the client core's prometheus instrumentation. Each
// instance carries its own registry so tests can create metrics freely.
type Metrics struct {
	registry *prometheus.Registry

	ReconcileCycles   prometheus.Counter
	ReconcileFailures *prometheus.CounterVec
	PushEvents        *prometheus.CounterVec
	AlertsFired       prometheus.Counter
	PendingPosts      prometheus.Gauge
}

// NewMetrics creates and registers the core metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ReconcileCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plume_reconcile_cycles_total",
			Help: "Completed reconciliation cycles",
		}),
		ReconcileFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plume_reconcile_domain_failures_total",
			Help: "Per-domain fetch failures during reconciliation",
		}, []string{"domain"}),
		PushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plume_push_events_total",
			Help: "Push events received by type",
		}, []string{"type"}),
		AlertsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plume_alerts_fired_total",
			Help: "Notification alerts surfaced to the user",
		}),
		PendingPosts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plume_pending_posts",
			Help: "Posts staged behind the show-new-posts action",
		}),
	}

	m.registry.MustRegister(
		m.ReconcileCycles,
		m.ReconcileFailures,
		m.PushEvents,
		m.AlertsFired,
		m.PendingPosts,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
