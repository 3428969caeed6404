// Package metrics counts fetch job activity with Prometheus collectors. A CLI
// run has no scrape endpoint, so the registry is written to a node-exporter
// textfile when the batch ends.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blackarch/wordlistctl/pkg/errors"
	"github.com/blackarch/wordlistctl/pkg/fetch"
)

const namespace = "wordlistctl"

// Recorder owns one set of collectors.
type Recorder struct {
	Transitions *prometheus.CounterVec
	JobsTotal   *prometheus.CounterVec
	ActiveJobs  prometheus.Gauge
	Retries     prometheus.Counter
	BytesTotal  *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
}

// New creates unregistered collectors.
func New() *Recorder {
	return &Recorder{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_transitions_total",
			Help:      "Fetch job state transitions by target state.",
		}, []string{"state"}),

		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished fetch jobs by terminal state.",
		}, []string{"state"}),

		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Fetch jobs currently between pending and a terminal state.",
		}),

		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Transfer attempts that failed and were retried.",
		}),

		BytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_bytes_total",
			Help:      "Payload bytes received by protocol.",
		}, []string{"protocol"}),

		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of finished fetch jobs.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
		}, []string{"state"}),
	}
}

// Register adds every collector to reg.
func (r *Recorder) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		r.Transitions,
		r.JobsTotal,
		r.ActiveJobs,
		r.Retries,
		r.BytesTotal,
		r.JobDuration,
	)
}

// Started marks a job as active.
func (r *Recorder) Started() {
	r.ActiveJobs.Inc()
}

// Transition counts a state change.
func (r *Recorder) Transition(state fetch.State) {
	r.Transitions.WithLabelValues(state.String()).Inc()
	if state == fetch.StateRetrying {
		r.Retries.Inc()
	}
}

// Finished records a job reaching state after elapsed, having received bytes
// over protocol.
func (r *Recorder) Finished(state fetch.State, protocol string, bytes int64, elapsed time.Duration) {
	r.ActiveJobs.Dec()
	r.JobsTotal.WithLabelValues(state.String()).Inc()
	r.JobDuration.WithLabelValues(state.String()).Observe(elapsed.Seconds())
	if bytes > 0 {
		r.BytesTotal.WithLabelValues(protocol).Add(float64(bytes))
	}
}

// WriteTextfile gathers reg into path in the text exposition format.
func WriteTextfile(path string, reg prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return errors.Wrapf(err, "could not write metrics to %s", path)
	}
	return nil
}
