package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	outcomeReceived       = "received"
	outcomeSkipped        = "skipped"
	outcomeResent         = "resent"
	outcomeResendFailed   = "resend_failed"
	outcomeArchived       = "archived"
	outcomeArchiveFailed  = "archive_failed"
	outcomeCompleted      = "completed"
	outcomeCompleteFailed = "complete_failed"
)

// PrometheusMetrics records reconciliation counters on a private registry.
// A batch job does not live long enough to be scraped, so the registry is
// pushed to a Pushgateway at the end of every run.
type PrometheusMetrics struct {
	registry *prometheus.Registry
	messages *prometheus.CounterVec
	runs     prometheus.Counter
}

func NewPrometheusMetrics(queue string) *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "deadletter",
		Subsystem:   "reconciler",
		Name:        "messages_total",
		Help:        "Dead-lettered messages handled by the reconciler, by outcome.",
		ConstLabels: prometheus.Labels{"queue": queue},
	}, []string{"outcome"})

	runs := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "deadletter",
		Subsystem:   "reconciler",
		Name:        "runs_total",
		Help:        "Reconciliation runs pushed by this process.",
		ConstLabels: prometheus.Labels{"queue": queue},
	})

	registry.MustRegister(messages, runs)

	return &PrometheusMetrics{
		registry: registry,
		messages: messages,
		runs:     runs,
	}
}

func (m *PrometheusMetrics) IncReceived() {
	m.messages.WithLabelValues(outcomeReceived).Inc()
}

func (m *PrometheusMetrics) IncSkipped() {
	m.messages.WithLabelValues(outcomeSkipped).Inc()
}

func (m *PrometheusMetrics) IncResent(n int) {
	m.messages.WithLabelValues(outcomeResent).Add(float64(n))
}

func (m *PrometheusMetrics) IncResendFailed() {
	m.messages.WithLabelValues(outcomeResendFailed).Inc()
}

func (m *PrometheusMetrics) IncArchived(n int) {
	m.messages.WithLabelValues(outcomeArchived).Add(float64(n))
}

func (m *PrometheusMetrics) IncArchiveFailed(n int) {
	m.messages.WithLabelValues(outcomeArchiveFailed).Add(float64(n))
}

func (m *PrometheusMetrics) IncCompleted() {
	m.messages.WithLabelValues(outcomeCompleted).Inc()
}

func (m *PrometheusMetrics) IncCompleteFailed() {
	m.messages.WithLabelValues(outcomeCompleteFailed).Inc()
}

func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Push sends the current counters to the Pushgateway at url
func (m *PrometheusMetrics) Push(ctx context.Context, url, job string) error {
	m.runs.Inc()
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
