package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "txauth"

// Metrics manages the Prometheus metrics.
type Metrics struct {
	TokenIssueRequests *prometheus.CounterVec
	TokenIssueLatency  *prometheus.HistogramVec
	Validations        *prometheus.CounterVec
	ValidationLatency  *prometheus.HistogramVec
	ValidationSteps    *prometheus.CounterVec
	TokenRevocations   *prometheus.CounterVec

	HTTPActiveRequests  *prometheus.GaugeVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// means the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		TokenIssueRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_issue_requests_total",
				Help:      "Total number of issued or failed tokens.",
			},
			[]string{"token_type", "result", "error_code"},
		),
		TokenIssueLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "token_issue_latency_seconds",
				Help:      "Latency of token signing.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"token_type"},
		),
		Validations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_total",
				Help:      "Total number of authorization validations.",
			},
			[]string{"mode", "result", "error_code"},
		),
		ValidationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "validation_latency_seconds",
				Help:      "Latency of authorization validations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		ValidationSteps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_steps_total",
				Help:      "Validation state machine transitions.",
			},
			[]string{"mode", "state"},
		),
		TokenRevocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_revocations_total",
				Help:      "Total number of token revocations.",
			},
			[]string{"reason"},
		),
		HTTPActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_active_requests",
				Help:      "In-flight HTTP requests.",
			},
			[]string{"path", "method"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path", "method", "status"},
		),
	}
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordTokenIssue records metrics for a token issue event.
func (m *Metrics) RecordTokenIssue(tokenType string, success bool, duration time.Duration, errorCode string) {
	m.TokenIssueRequests.WithLabelValues(tokenType, result(success), errorCode).Inc()
	m.TokenIssueLatency.WithLabelValues(tokenType).Observe(duration.Seconds())
}

func (m *Metrics) RecordValidation(mode string, success bool, duration time.Duration, errorCode string) {
	m.Validations.WithLabelValues(mode, result(success), errorCode).Inc()
	m.ValidationLatency.WithLabelValues(mode).Observe(duration.Seconds())
}

func (m *Metrics) RecordValidationStep(mode, state string) {
	m.ValidationSteps.WithLabelValues(mode, state).Inc()
}

// RecordTokenRevocation records metrics for a token revocation event.
func (m *Metrics) RecordTokenRevocation(reason string) {
	m.TokenRevocations.WithLabelValues(reason).Inc()
}

func (m *Metrics) ActiveRequestsInc(path, method string) {
	m.HTTPActiveRequests.WithLabelValues(path, method).Inc()
}

func (m *Metrics) ActiveRequestsDec(path, method string) {
	m.HTTPActiveRequests.WithLabelValues(path, method).Dec()
}

func (m *Metrics) ObserveRequestDuration(path, method string, status int, seconds float64) {
	m.HTTPRequestDuration.WithLabelValues(path, method, strconv.Itoa(status)).Observe(seconds)
}
