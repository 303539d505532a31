// Package observability provides Prometheus metrics for the sync client.
package observability

import (
	"net/http"

	"auction-sync/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the sync client.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Store metrics
	EventsApplied         *prometheus.CounterVec
	StaleSnapshotsDropped *prometheus.CounterVec
	CommandFailures       *prometheus.CounterVec
	RESTFallbacks         prometheus.Counter
	NotificationsEmitted  *prometheus.CounterVec

	// Transport metrics
	RetryAttempts       *prometheus.CounterVec
	RequestLatency      *prometheus.HistogramVec
	LiveConnectionState prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics registers all metrics on reg. A nil reg gets a private registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "auction_sync"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		EventsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "events_applied_total",
			Help:      "Total number of live events applied to the store by type",
		}, []string{"event_type"}),
		StaleSnapshotsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "stale_snapshots_dropped_total",
			Help:      "Auction snapshots ignored because a newer revision was already applied",
		}, []string{"source"}),
		CommandFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "command_failures_total",
			Help:      "Total number of failed store commands by command",
		}, []string{"command"}),
		RESTFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "rest_fallbacks_total",
			Help:      "Bids sent over REST because the live channel was not connected",
		}),
		NotificationsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "emitted_total",
			Help:      "Total number of notifications added to the feed by type",
		}, []string{"type"}),
		RetryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "retry_attempts_total",
			Help:      "Total number of repeated HTTP attempts by operation",
		}, []string{"operation"}),
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_latency_seconds",
			Help:      "HTTP call latency including retries, in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		LiveConnectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "connection_state",
			Help:      "Live channel state: 0 disconnected, 1 connecting, 2 connected",
		}),
		gatherer: reg,
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordEventApplied increments the applied events counter.
func (m *Metrics) RecordEventApplied(eventType string) {
	if m == nil {
		return
	}
	m.EventsApplied.WithLabelValues(eventType).Inc()
}

// RecordStaleSnapshot increments the dropped snapshot counter.
func (m *Metrics) RecordStaleSnapshot(source string) {
	if m == nil {
		return
	}
	m.StaleSnapshotsDropped.WithLabelValues(source).Inc()
}

// RecordCommandFailure increments the command failure counter.
func (m *Metrics) RecordCommandFailure(command string) {
	if m == nil {
		return
	}
	m.CommandFailures.WithLabelValues(command).Inc()
}

// RecordRESTFallback increments the REST fallback counter.
func (m *Metrics) RecordRESTFallback() {
	if m == nil {
		return
	}
	m.RESTFallbacks.Inc()
}

// RecordNotification increments the emitted notification counter.
func (m *Metrics) RecordNotification(kind models.NotificationType) {
	if m == nil {
		return
	}
	m.NotificationsEmitted.WithLabelValues(string(kind)).Inc()
}

// RecordRetry increments the retry counter.
func (m *Metrics) RecordRetry(operation string) {
	if m == nil {
		return
	}
	m.RetryAttempts.WithLabelValues(operation).Inc()
}

// RecordRequest records HTTP call latency.
func (m *Metrics) RecordRequest(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestLatency.WithLabelValues(operation).Observe(seconds)
}

// SetConnectionState updates the live connection gauge.
func (m *Metrics) SetConnectionState(status models.ConnectionStatus) {
	if m == nil {
		return
	}
	switch status {
	case models.ConnectionConnected:
		m.LiveConnectionState.Set(2)
	case models.ConnectionConnecting:
		m.LiveConnectionState.Set(1)
	default:
		m.LiveConnectionState.Set(0)
	}
}
