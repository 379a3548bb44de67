// Package metrics exposes Prometheus collectors for job admission, dispatch
// and schedule firing. A nil *Metrics is valid and records nothing, so
// components can be built without a registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "buzzsnip"

// Metrics holds the collectors shared by the job manager, worker pool and ticker.
type Metrics struct {
	jobsSubmitted     *prometheus.CounterVec
	jobsFinished      *prometheus.CounterVec
	admissionRejected prometheus.Counter
	dispatchDuration  *prometheus.HistogramVec
	schedulesFired    *prometheus.CounterVec
	activeJobs        prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "Jobs admitted, by kind.",
		}, []string{"kind"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Jobs that reached a terminal status, by kind and status.",
		}, []string{"kind", "status"}),
		admissionRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "admission_rejected_total",
			Help:      "Job requests refused because the concurrency ceiling was reached.",
		}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Generation service call latency, by kind and outcome.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"kind", "outcome"}),
		schedulesFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "fired_total",
			Help:      "Due schedule occurrences handled by the ticker, by outcome.",
		}, []string{"outcome"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "active",
			Help:      "Jobs currently being dispatched by the worker pool.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.jobsSubmitted,
			m.jobsFinished,
			m.admissionRejected,
			m.dispatchDuration,
			m.schedulesFired,
			m.activeJobs,
		)
	}
	return m
}

func (m *Metrics) JobSubmitted(kind string) {
	if m == nil {
		return
	}
	m.jobsSubmitted.WithLabelValues(kind).Inc()
}

func (m *Metrics) JobFinished(kind, status string) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) AdmissionRejected() {
	if m == nil {
		return
	}
	m.admissionRejected.Inc()
}

// DispatchDuration observes one generation call. outcome is "ok",
// "unavailable" or "generation_failed".
func (m *Metrics) DispatchDuration(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.WithLabelValues(kind, outcome).Observe(d.Seconds())
}

// ScheduleFired counts one due occurrence. outcome is "submitted",
// "skipped", "deferred" or "failed".
func (m *Metrics) ScheduleFired(outcome string) {
	if m == nil {
		return
	}
	m.schedulesFired.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DispatchStarted() {
	if m == nil {
		return
	}
	m.activeJobs.Inc()
}

func (m *Metrics) DispatchEnded() {
	if m == nil {
		return
	}
	m.activeJobs.Dec()
}
