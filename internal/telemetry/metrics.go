// Package telemetry exposes Prometheus metrics for syncs, the Meta API and
// the analysis steps.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/ads-insights/internal/model"
)

const namespace = "ads_insights"

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// Sync metrics
	SyncRuns     *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	RowsUpserted prometheus.Counter

	// Analysis metrics
	Alerts          *prometheus.CounterVec
	Recommendations *prometheus.CounterVec

	// Upstream metrics
	MetaRequests *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers every collector with reg. A nil reg uses a fresh registry so
// tests and multiple instances never collide.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		SyncRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Sync runs by final status",
			},
			[]string{"status"},
		),
		StepDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_step_duration_seconds",
				Help:      "Duration of each sync step",
				Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
			},
			[]string{"step", "status"},
		),
		RowsUpserted: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_upserted_total",
				Help:      "Campaign rows written",
			},
		),
		Alerts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Alerts raised by type and severity",
			},
			[]string{"type", "severity"},
		),
		Recommendations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recommendations_total",
				Help:      "Recommendations produced by source and type",
			},
			[]string{"source", "type"},
		),
		MetaRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "meta_requests_total",
				Help:      "Meta Graph API requests by outcome",
			},
			[]string{"outcome"},
		),
		gatherer: reg,
	}
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordSyncRun(status model.SyncStatus) {
	m.SyncRuns.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) RecordStep(step string, status model.StepStatus, d time.Duration) {
	m.StepDuration.WithLabelValues(step, string(status)).Observe(d.Seconds())
}

func (m *Metrics) RecordRowsUpserted(n int64) {
	m.RowsUpserted.Add(float64(n))
}

func (m *Metrics) RecordAlert(a model.Alert) {
	m.Alerts.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
}

func (m *Metrics) RecordRecommendation(r model.Recommendation) {
	m.Recommendations.WithLabelValues(string(r.Source), string(r.Type)).Inc()
}

// RecordMetaRequest matches the meta client's request hook signature.
func (m *Metrics) RecordMetaRequest(outcome string) {
	m.MetaRequests.WithLabelValues(outcome).Inc()
}
