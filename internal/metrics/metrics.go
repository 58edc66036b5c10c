// Package metrics provides Prometheus metrics for the drive engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Gateway call metrics
	gatewayOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperdrive_gateway_ops_total",
			Help: "Total number of RemoteGateway calls",
		},
		[]string{"op", "status"},
	)

	gatewayOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paperdrive_gateway_op_duration_seconds",
			Help:    "RemoteGateway call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// Session metrics
	staleResponsesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperdrive_stale_responses_dropped_total",
			Help: "Fetch responses discarded because a newer fetch superseded them",
		},
		[]string{"category"},
	)

	optimisticRollbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperdrive_optimistic_rollbacks_total",
			Help: "Optimistic mutations rolled back after a remote failure",
		},
		[]string{"op"},
	)

	busyRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperdrive_busy_rejections_total",
			Help: "Operations rejected because a conflicting one was in flight",
		},
		[]string{"op"},
	)

	storeNodeCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "paperdrive_store_node_count",
			Help: "Number of nodes currently held in the local store",
		},
	)

	// Event metrics
	eventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "paperdrive_event_subscribers",
			Help: "Number of active event subscribers",
		},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperdrive_events_published_total",
			Help: "Events published to subscribers",
		},
		[]string{"type"},
	)

	// Database metrics (postgres gateway)
	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "paperdrive_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// RecordGatewayOp records the outcome and duration of one gateway call.
func RecordGatewayOp(op string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	gatewayOpsTotal.WithLabelValues(op, status).Inc()
	gatewayOpDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordStaleResponse records a fetch result dropped by token mismatch.
func RecordStaleResponse(category string) {
	staleResponsesDropped.WithLabelValues(category).Inc()
}

// RecordRollback records an optimistic mutation rolled back.
func RecordRollback(op string) {
	optimisticRollbacks.WithLabelValues(op).Inc()
}

// RecordBusyRejection records an operation refused by a concurrency guard.
func RecordBusyRejection(op string) {
	busyRejections.WithLabelValues(op).Inc()
}

// SetStoreNodeCount updates the local store size gauge.
func SetStoreNodeCount(n int) {
	storeNodeCount.Set(float64(n))
}

// SetEventSubscribers updates the subscriber gauge.
func SetEventSubscribers(n int) {
	eventSubscribers.Set(float64(n))
}

// RecordEvent counts a published event by type.
func RecordEvent(eventType string) {
	eventsPublished.WithLabelValues(eventType).Inc()
}

// SetDBConnectionsOpen updates the database connection gauge.
func SetDBConnectionsOpen(n int) {
	dbConnectionsOpen.Set(float64(n))
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
