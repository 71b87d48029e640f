// Package observability provides metrics and tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "murmur_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// ScheduledPostsPublished counts promotions by trigger (sweep or manual).
	ScheduledPostsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_scheduled_posts_published_total",
		Help: "Scheduled posts promoted into live posts",
	}, []string{"trigger"})

	// ScheduledPostFailures counts promotions that failed and stayed pending.
	ScheduledPostFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_scheduled_post_failures_total",
		Help: "Scheduled post promotions that failed",
	}, []string{"trigger"})

	// ScheduledPostsSkipped counts due records that were no longer pending when promotion ran.
	ScheduledPostsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "murmur_scheduled_posts_skipped_total",
		Help: "Due scheduled posts skipped because another actor already handled them",
	})

	// SweepDuration records how long each publication sweep took.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "murmur_scheduler_sweep_duration_seconds",
		Help:    "Duration of scheduled post sweeps",
		Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	})

	// SweepDue records how many records each sweep found due.
	SweepDue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "murmur_scheduler_last_sweep_due",
		Help: "Number of due scheduled posts found by the last sweep",
	})

	// SweepsInFlight is the number of sweeps currently running.
	SweepsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "murmur_scheduler_sweeps_in_flight",
		Help: "Scheduled post sweeps currently running",
	})
)

// ObserveQuery records the latency of a database operation started at start.
func ObserveQuery(operation, table string, start time.Time) {
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		ObserveQuery(operation, table, start)
	}
}
