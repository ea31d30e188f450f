// Package metrics declares in-process Prometheus counters and histograms
// for vattid. There is no HTTP exporter: counters are recorded here and
// periodically logged by the scheduler instead of being scraped.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// JobsByState is a per-state job-count gauge. It is registered but no
	// code in this module sets it.
	JobsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vattid_jobs_by_state",
			Help: "Current number of jobs in each state",
		},
		[]string{"state"},
	)

	JobsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vattid_jobs_created_total",
			Help: "Total number of jobs admitted from the launch topic",
		},
	)

	JobsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vattid_jobs_failed_total",
			Help: "Total number of jobs that reached the Failed state",
		},
	)

	JobsSucceededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vattid_jobs_succeeded_total",
			Help: "Total number of jobs that reached the Succeeded state",
		},
	)

	// SweepDuration times each scheduler sweep by name.
	SweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vattid_sweep_duration_seconds",
			Help:    "Time taken by each scheduler sweep",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sweep"},
	)

	BusFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vattid_bus_failures_total",
			Help: "Total number of consumer/producer bus failures observed by the scheduler",
		},
	)

	BucketsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vattid_buckets_deleted_total",
			Help: "Total number of stale work/results buckets force-deleted by the GC sweep",
		},
	)
)

func init() {
	prometheus.MustRegister(JobsByState)
	prometheus.MustRegister(JobsCreatedTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(JobsSucceededTotal)
	prometheus.MustRegister(SweepDuration)
	prometheus.MustRegister(BusFailuresTotal)
	prometheus.MustRegister(BucketsDeletedTotal)
}

// Timer is a helper for timing a sweep and recording it to a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labelled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
