package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is nil-safe: every recorder is a no-op on a nil receiver.
type Metrics struct {
	violations       *prometheus.CounterVec
	actions          *prometheus.CounterVec
	processing       *prometheus.HistogramVec
	cleanupDeletions *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngguard_violations_total",
				Help: "Total number of detected violations",
			},
			[]string{"reason"},
		),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngguard_enforcement_actions_total",
				Help: "Enforcement actions attempted on the platform",
			},
			[]string{"action", "result"},
		),
		processing: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ngguard_message_processing_duration_seconds",
				Help:    "Time spent moderating a message",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		cleanupDeletions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngguard_cleanup_deletions_total",
				Help: "Scheduled notice deletions by result",
			},
			[]string{"result"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.violations, m.actions, m.processing, m.cleanupDeletions)
	}
	return m
}

func (m *Metrics) RecordViolation(reason string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordAction(action, result string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) RecordCleanup(result string) {
	if m == nil {
		return
	}
	m.cleanupDeletions.WithLabelValues(result).Inc()
}

// StartMessageProcessing returns a function to record message processing duration
func (m *Metrics) StartMessageProcessing() func(status string) {
	start := time.Now()
	return func(status string) {
		if m == nil {
			return
		}
		m.processing.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}
