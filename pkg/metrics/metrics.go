package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request latency (seconds)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// Roadmap generator latency (milliseconds)
	GenerationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roadmap_generation_latency_ms",
			Help:    "Roadmap generator call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"outcome"},
	)

	ProjectsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projects_created_total",
			Help: "Total number of projects created",
		},
		[]string{"planning_mode"},
	)

	// Schedules rejected because the work does not fit before the deadline.
	InfeasibleSchedules = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "schedules_infeasible_total",
			Help: "Total number of deadline schedules rejected as infeasible",
		},
	)

	TaskTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_status_transitions_total",
			Help: "Total number of task status changes",
		},
		[]string{"from", "to"},
	)

	SlowQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_queries_total",
			Help: "Total number of queries slower than the configured threshold",
		},
	)

	SlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~12s
		},
	)

	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Outbox events handed to the broker",
		},
		[]string{"routing_key", "status"}, // status: sent, failed
	)
)

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordGeneration observes one generator call. outcome: success, error, rejected.
func RecordGeneration(outcome string, duration time.Duration) {
	GenerationLatency.WithLabelValues(outcome).Observe(float64(duration.Milliseconds()))
}

func IncrementProjectCreated(mode string) {
	ProjectsCreated.WithLabelValues(mode).Inc()
}

func IncrementInfeasible() {
	InfeasibleSchedules.Inc()
}

func IncrementTaskTransition(from, to string) {
	TaskTransitions.WithLabelValues(from, to).Inc()
}

// IncrementSlowQuery counts a query that exceeded the slow threshold.
func IncrementSlowQuery(duration time.Duration) {
	SlowQueries.Inc()
	SlowQueryDuration.Observe(duration.Seconds())
}

func IncrementOutboxPublished(routingKey, status string) {
	OutboxPublished.WithLabelValues(routingKey, status).Inc()
}
