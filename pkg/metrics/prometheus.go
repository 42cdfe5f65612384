package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects pipeline counters on its own registry
// ⭐ SSOT: 파이프라인 메트릭 정의는 여기서만
type Recorder struct {
	registry *prometheus.Registry

	rowsIngested   *prometheus.CounterVec
	rowsSkipped    *prometheus.CounterVec
	datesExcluded  *prometheus.CounterVec
	softExclusions prometheus.Counter
	anomalies      *prometheus.CounterVec
	trainRows      *prometheus.GaugeVec
	cvAUC          *prometheus.GaugeVec
	stageDuration  *prometheus.HistogramVec
}

// New creates a recorder with a fresh registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		rowsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smartflow_rows_ingested_total",
			Help: "Raw rows parsed per source",
		}, []string{"source"}),
		rowsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smartflow_rows_skipped_total",
			Help: "Malformed raw rows skipped per source",
		}, []string{"source"}),
		datesExcluded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smartflow_dates_excluded_total",
			Help: "Dates excluded from the run by reason",
		}, []string{"reason"}),
		softExclusions: factory.NewCounter(prometheus.CounterOpts{
			Name: "smartflow_soft_exclusions_total",
			Help: "Symbol-dates excluded by statistical quality checks",
		}),
		anomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smartflow_anomalies_total",
			Help: "Anomaly flags raised by rule",
		}, []string{"rule"}),
		trainRows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smartflow_training_rows",
			Help: "Rows in the last training table per horizon",
		}, []string{"horizon"}),
		cvAUC: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smartflow_cv_auc",
			Help: "Mean time-series cross-validation ROC-AUC per horizon",
		}, []string{"horizon"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smartflow_stage_duration_seconds",
			Help:    "Wall time per pipeline stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}

// RecordIngest records parsed and skipped rows for one source file
func (r *Recorder) RecordIngest(source string, parsed, skipped int) {
	if r == nil {
		return
	}
	r.rowsIngested.WithLabelValues(source).Add(float64(parsed))
	r.rowsSkipped.WithLabelValues(source).Add(float64(skipped))
}

// RecordDateExcluded records a whole-date exclusion
func (r *Recorder) RecordDateExcluded(reason string) {
	if r == nil {
		return
	}
	r.datesExcluded.WithLabelValues(reason).Inc()
}

// RecordSoftExclusions records symbol-level quality exclusions
func (r *Recorder) RecordSoftExclusions(n int) {
	if r == nil {
		return
	}
	r.softExclusions.Add(float64(n))
}

// RecordAnomaly records one anomaly flag
func (r *Recorder) RecordAnomaly(rule string) {
	if r == nil {
		return
	}
	r.anomalies.WithLabelValues(rule).Inc()
}

// RecordTraining records the table size and CV score of a horizon
func (r *Recorder) RecordTraining(horizon string, rows int, auc float64) {
	if r == nil {
		return
	}
	r.trainRows.WithLabelValues(horizon).Set(float64(rows))
	r.cvAUC.WithLabelValues(horizon).Set(auc)
}

// ObserveStage records stage latency in seconds
func (r *Recorder) ObserveStage(stage string, seconds float64) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// Gatherer exposes the registry for tests
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
