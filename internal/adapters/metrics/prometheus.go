// Package metrics exposes admission outcomes to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/domain"
)

// PrometheusRecorder implements ports.MetricsRecorder on a prometheus
// registry.
type PrometheusRecorder struct {
	admissions    *prometheus.CounterVec
	storeErrors   *prometheus.CounterVec
	ledgerLatency prometheus.Histogram
}

func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		admissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_decisions_total",
			Help: "Admission decisions by route and reason.",
		}, []string{"route", "reason"}),
		storeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_store_errors_total",
			Help: "Storage backend failures by component.",
		}, []string{"component"}),
		ledgerLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "admission_quota_ledger_seconds",
			Help:    "Latency of quota ledger check-and-reserve calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (r *PrometheusRecorder) RecordAdmission(route string, reason domain.Reason) {
	r.admissions.WithLabelValues(route, string(reason)).Inc()
}

func (r *PrometheusRecorder) RecordStoreError(component string) {
	r.storeErrors.WithLabelValues(component).Inc()
}

func (r *PrometheusRecorder) ObserveLedgerLatency(d time.Duration) {
	r.ledgerLatency.Observe(d.Seconds())
}
