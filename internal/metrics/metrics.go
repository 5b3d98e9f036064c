// Package metrics exposes Prometheus metrics for research jobs, worker runs
// and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/property-research/internal/model"
)

const namespace = "property_research"

// Labels
const (
	statusLabel = "status"
	workerLabel = "worker"
)

// Metrics records job and worker activity. The zero value is not usable;
// create with New.
type Metrics struct {
	jobsTotal      *prometheus.CounterVec
	jobDuration    prometheus.Histogram
	jobsInFlight   prometheus.Gauge
	workerRuns     *prometheus.CounterVec
	workerDuration *prometheus.HistogramVec
	cacheHits      prometheus.Counter
}

// New creates the metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Research jobs finished, by terminal status.",
		}, []string{statusLabel}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time from job start to terminal status.",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 300},
		}),
		jobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Research jobs currently running.",
		}),
		workerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_runs_total",
			Help:      "Worker runs, by worker and status.",
		}, []string{workerLabel, statusLabel}),
		workerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_duration_seconds",
			Help:      "Worker run duration.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{workerLabel}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_cache_hits_total",
			Help:      "Worker runs served from the result cache.",
		}),
	}
	reg.MustRegister(m.jobsTotal, m.jobDuration, m.jobsInFlight, m.workerRuns, m.workerDuration, m.cacheHits)
	return m
}

// JobStarted marks a job as running.
func (m *Metrics) JobStarted() {
	m.jobsInFlight.Inc()
}

// JobFinished records a job reaching a terminal status.
func (m *Metrics) JobFinished(status model.JobStatus, elapsed time.Duration) {
	m.jobsInFlight.Dec()
	m.jobsTotal.With(prometheus.Labels{statusLabel: string(status)}).Inc()
	m.jobDuration.Observe(elapsed.Seconds())
}

// WorkerFinished records one worker run.
func (m *Metrics) WorkerFinished(run model.WorkerRun) {
	m.workerRuns.With(prometheus.Labels{workerLabel: run.Worker, statusLabel: string(run.Status)}).Inc()
	if run.Cached {
		m.cacheHits.Inc()
		return
	}
	m.workerDuration.With(prometheus.Labels{workerLabel: run.Worker}).Observe(float64(run.DurationMS) / 1000)
}
