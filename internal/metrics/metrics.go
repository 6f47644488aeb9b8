// Package metrics provides Prometheus metrics for the marketplace service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts finished runs by outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentmarket",
			Subsystem: "execution",
			Name:      "runs_total",
			Help:      "Total number of runs by outcome",
		},
		[]string{"outcome"}, // "completed", "stopped"
	)

	// RunsActive tracks currently active runs.
	RunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentmarket",
			Subsystem: "execution",
			Name:      "runs_active",
			Help:      "Number of currently running runs",
		},
	)

	// RunDuration tracks wall time from start to completion or stop.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentmarket",
			Subsystem: "execution",
			Name:      "run_duration_seconds",
			Help:      "Run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"outcome"},
	)

	// StepsTotal counts processed steps by final status.
	StepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentmarket",
			Subsystem: "execution",
			Name:      "steps_total",
			Help:      "Total number of steps processed by status",
		},
		[]string{"status"}, // "completed", "error"
	)

	// StepDuration tracks time between input submission and step result.
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentmarket",
			Subsystem: "execution",
			Name:      "step_duration_seconds",
			Help:      "Step processing duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// EventsTotal counts events emitted by type.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentmarket",
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Total number of events emitted",
		},
		[]string{"type"},
	)

	// SessionsActive tracks live execution sessions.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentmarket",
			Subsystem: "session",
			Name:      "sessions_active",
			Help:      "Number of live execution sessions",
		},
	)

	// StreamsActive tracks open SSE and WebSocket subscribers.
	StreamsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "agentmarket",
			Subsystem: "session",
			Name:      "streams_active",
			Help:      "Number of open event streams",
		},
		[]string{"transport"}, // "sse", "websocket"
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentmarket",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentmarket",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RateLimited counts requests rejected by the rate limiter.
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentmarket",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
	)

	// StoreOperations counts catalog, flow, and attachment store operations.
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentmarket",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of store operations",
		},
		[]string{"store", "operation", "result"}, // result: success, error
	)

	// AttachmentBytes counts bytes written to the attachment store.
	AttachmentBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentmarket",
			Subsystem: "store",
			Name:      "attachment_bytes_total",
			Help:      "Total bytes of uploaded attachments",
		},
	)
)

// ObserveStore records the outcome of a store operation.
func ObserveStore(store, op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	StoreOperations.WithLabelValues(store, op, result).Inc()
}
