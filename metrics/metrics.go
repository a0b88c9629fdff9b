// Package metrics holds the Prometheus collectors of the gateway and the
// HTTP server exposing them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status check outcomes used as the "outcome" label.
const (
	OutcomeOK          = "ok"
	OutcomeUnreachable = "unreachable"
	OutcomeTimeout     = "timeout"
	OutcomeEmpty       = "empty_response"
	OutcomeError       = "error"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Status check metrics
	StatusChecks        *prometheus.CounterVec
	StatusCheckDuration *prometheus.HistogramVec
	StatusRateLimited   prometheus.Counter

	// Tenant configuration metrics
	ConfigMutations    *prometheus.CounterVec
	ConfigsCreated     prometheus.Counter
	CertificateUploads *prometheus.CounterVec
	CertificatesPruned prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		StatusChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_checks_total",
				Help:      "Total number of status service checks",
			},
			[]string{"environment", "outcome"},
		),

		StatusCheckDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "status_check_duration_seconds",
				Help:      "Duration of status service checks",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"environment"},
		),

		StatusRateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_checks_rate_limited_total",
				Help:      "Total number of status checks rejected by the per-tenant limiter",
			},
		),

		ConfigMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_mutations_total",
				Help:      "Total number of tenant configuration writes",
			},
			[]string{"operation", "status"},
		),

		ConfigsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "configs_created_total",
				Help:      "Total number of default tenant configurations created on first access",
			},
		),

		CertificateUploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "certificate_uploads_total",
				Help:      "Total number of certificate uploads",
			},
			[]string{"status"},
		),

		CertificatesPruned: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "certificates_pruned_total",
				Help:      "Total number of certificate blobs removed by retention",
			},
		),
	}
}

// RecordStatusCheck records a status check
func (m *Metrics) RecordStatusCheck(environment, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StatusChecks.WithLabelValues(environment, outcome).Inc()
	m.StatusCheckDuration.WithLabelValues(environment).Observe(duration.Seconds())
}

// RecordRateLimited records a rejected status check
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.StatusRateLimited.Inc()
}

// RecordConfigMutation records a configuration write
func (m *Metrics) RecordConfigMutation(operation string, err error) {
	if m == nil {
		return
	}
	m.ConfigMutations.WithLabelValues(operation, statusLabel(err)).Inc()
}

// RecordConfigCreated records a default configuration created on first access
func (m *Metrics) RecordConfigCreated() {
	if m == nil {
		return
	}
	m.ConfigsCreated.Inc()
}

// RecordCertificateUpload records a certificate upload
func (m *Metrics) RecordCertificateUpload(err error) {
	if m == nil {
		return
	}
	m.CertificateUploads.WithLabelValues(statusLabel(err)).Inc()
}

// RecordCertificatesPruned records blobs removed by retention
func (m *Metrics) RecordCertificatesPruned(n int) {
	if m == nil {
		return
	}
	m.CertificatesPruned.Add(float64(n))
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
