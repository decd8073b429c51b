// Package metrics exposes Prometheus instrumentation for the dispatch
// engine. A process installs one Metrics instance as the global; the
// helper functions are nil-safe so library code can record events without
// caring whether metrics are wired (tests, one-off tools).
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	EmailsSentTotal   *prometheus.CounterVec
	EmailsFailedTotal *prometheus.CounterVec

	PassesTotal         *prometheus.CounterVec
	PassDurationSeconds prometheus.Histogram
	ReschedulesTotal    *prometheus.CounterVec

	PendingRecipients *prometheus.GaugeVec

	JobsScheduled  prometheus.Gauge
	JobsProcessing prometheus.Gauge

	APIRequestsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with all collectors registered on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_emails_sent_total",
				Help: "Total emails accepted by a transport",
			},
			[]string{"provider"},
		),
		EmailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_emails_failed_total",
				Help: "Total emails refused or errored by a transport",
			},
			[]string{"provider"},
		),
		PassesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_passes_total",
				Help: "Total dispatch passes by outcome",
			},
			[]string{"result"},
		),
		PassDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dispatch_pass_duration_seconds",
				Help:    "Wall time of one dispatch pass",
				Buckets: []float64{.05, .25, 1, 5, 15, 60, 300, 900},
			},
		),
		ReschedulesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_reschedules_total",
				Help: "Total pass reschedules by reason",
			},
			[]string{"reason"},
		),
		PendingRecipients: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dispatch_pending_recipients",
				Help: "Recipients still pending per campaign",
			},
			[]string{"campaign"},
		),
		JobsScheduled: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispatch_jobs_scheduled",
				Help: "Jobs waiting in the scheduled set",
			},
		),
		JobsProcessing: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispatch_jobs_processing",
				Help: "Jobs currently claimed by workers",
			},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_api_requests_total",
				Help: "Total API requests",
			},
			[]string{"method", "path", "status"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.PassesTotal,
		m.PassDurationSeconds,
		m.ReschedulesTotal,
		m.PendingRecipients,
		m.JobsScheduled,
		m.JobsProcessing,
		m.APIRequestsTotal,
	)

	return m
}

// Registry returns the Prometheus registry backing this instance.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal installs the global metrics instance.
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the installed instance, or nil.
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncEmailSent records a transport-accepted send.
func IncEmailSent(provider string) {
	if m := Global(); m != nil {
		m.EmailsSentTotal.WithLabelValues(provider).Inc()
	}
}

// IncEmailFailed records a refused or errored send.
func IncEmailFailed(provider string) {
	if m := Global(); m != nil {
		m.EmailsFailedTotal.WithLabelValues(provider).Inc()
	}
}

// ObservePass records a finished pass and its wall time.
func ObservePass(result string, d time.Duration) {
	if m := Global(); m != nil {
		m.PassesTotal.WithLabelValues(result).Inc()
		m.PassDurationSeconds.Observe(d.Seconds())
	}
}

// IncReschedule records a pass reschedule decision.
func IncReschedule(reason string) {
	if m := Global(); m != nil {
		m.ReschedulesTotal.WithLabelValues(reason).Inc()
	}
}

// SetPendingRecipients updates the pending gauge for a campaign.
func SetPendingRecipients(campaignID string, n int) {
	if m := Global(); m != nil {
		m.PendingRecipients.WithLabelValues(campaignID).Set(float64(n))
	}
}

// SetQueueDepth updates the job queue gauges.
func SetQueueDepth(scheduled, processing int64) {
	if m := Global(); m != nil {
		m.JobsScheduled.Set(float64(scheduled))
		m.JobsProcessing.Set(float64(processing))
	}
}

// IncAPIRequest records one handled API request.
func IncAPIRequest(method, path, status string) {
	if m := Global(); m != nil {
		m.APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	}
}
