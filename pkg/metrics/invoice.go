package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for the invoicing pipeline.
const (
	OutcomeIssued          = "issued"
	OutcomeResumed         = "resumed"
	OutcomeAlreadyInvoiced = "already_invoiced"
	OutcomeFailed          = "failed"
)

// InvoiceMetrics records outcomes of the order-to-invoice pipeline.
type InvoiceMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// NewInvoiceMetrics registers the invoicing metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewInvoiceMetrics(reg prometheus.Registerer) *InvoiceMetrics {
	if reg == nil {
		return &InvoiceMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "invoice_pipeline_duration_seconds",
		Help:    "Duration of order-to-invoice runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoice_pipeline_outcomes_total",
		Help: "Order-to-invoice runs by outcome.",
	}, []string{"outcome"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoice_stage_failures_total",
		Help: "Order-to-invoice failures by pipeline stage.",
	}, []string{"stage"})
	reg.MustRegister(duration, outcomes, failures)
	return &InvoiceMetrics{
		duration: duration,
		outcomes: outcomes,
		failures: failures,
	}
}

// Observe records the run outcome and its duration.
func (m *InvoiceMetrics) Observe(outcome string, duration time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	label := normalizeLabel(outcome)
	m.outcomes.WithLabelValues(label).Inc()
	m.duration.WithLabelValues(label).Observe(duration.Seconds())
}

// IncStageFailure increments the failure counter for the named stage.
func (m *InvoiceMetrics) IncStageFailure(stage string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(stage)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
