// Package telemetry exposes Prometheus metrics for the job engine.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	// JobsStarted counts jobs that began executing, by job type.
	JobsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_jobs_started_total",
		Help: "Number of generation jobs started.",
	}, []string{"type"})

	// JobsCompleted counts jobs that reached a terminal state, by job type
	// and terminal status.
	JobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_jobs_finished_total",
		Help: "Number of generation jobs finished, by terminal status.",
	}, []string{"type", "status"})

	// ItemsProcessed counts per-item outcomes inside batch jobs.
	ItemsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_items_processed_total",
		Help: "Number of individual generation items processed.",
	}, []string{"type", "outcome"})

	// JobsInFlight tracks currently executing jobs.
	JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "generation_jobs_in_flight",
		Help: "Number of generation jobs currently executing.",
	})

	// JobDuration observes wall-clock job duration in seconds.
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "generation_job_duration_seconds",
		Help:    "Wall-clock duration of generation jobs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"type"})
)

func register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			JobsStarted,
			JobsCompleted,
			ItemsProcessed,
			JobsInFlight,
			JobDuration,
		)
	})
}

// Handler returns the /metrics handler, registering collectors on first use.
func Handler() http.Handler {
	register()
	return promhttp.Handler()
}
