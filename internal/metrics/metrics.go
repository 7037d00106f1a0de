// Package metrics exposes Prometheus collectors for runner and stream
// activity. Purely observational: nothing in the core reads these.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunnersStarted counts runner spawns by engine.
	RunnersStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_runners_started_total",
			Help: "Total number of runner spawns",
		},
		[]string{"engine"},
	)

	// RunnersFinished counts finished runners by engine and outcome.
	RunnersFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_runners_finished_total",
			Help: "Total number of finished runners",
		},
		[]string{"engine", "outcome"},
	)

	// ActiveRunners tracks currently live runners.
	ActiveRunners = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warden_active_runners",
			Help: "Number of currently live runners",
		},
		[]string{"engine"},
	)

	// EventsPublished counts unified events published to streams.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_events_published_total",
			Help: "Total unified events published",
		},
		[]string{"engine", "type"},
	)

	// DecodeErrors counts malformed JSONL lines by engine.
	DecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_decode_errors_total",
			Help: "Total malformed JSONL lines",
		},
		[]string{"engine"},
	)

	// LocksHeld tracks session locks currently held.
	LocksHeld = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_session_locks_held",
			Help: "Number of session locks currently held",
		},
	)

	// LocksReclaimed counts stale lock reclaims.
	LocksReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_session_locks_reclaimed_total",
			Help: "Total stale session locks reclaimed",
		},
	)

	// RunnerDuration tracks runner lifetimes.
	RunnerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_runner_duration_seconds",
			Help:    "Runner duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"engine", "outcome"},
	)

	// BufferDrops counts events dropped from consumer-side ring buffers.
	BufferDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_event_buffer_drops_total",
			Help: "Total events dropped from session event buffers",
		},
		[]string{"session_id"},
	)
)

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
