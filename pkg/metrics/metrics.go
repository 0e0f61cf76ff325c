// Package metrics exposes Prometheus instrumentation for the prediction pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lineup"

// Metrics is safe to use through a nil pointer, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	predictions        *prometheus.CounterVec
	predictionDuration *prometheus.HistogramVec
	solverFallbacks    prometheus.Counter
	trainingCVMAE      *prometheus.GaugeVec
	backtestPeriods    *prometheus.CounterVec
	backtestOverlap    prometheus.Histogram
	cacheLookups       *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	auto := promauto.With(reg)

	return &Metrics{
		registry: reg,
		predictions: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions generated by mode and outcome",
		}, []string{"mode", "outcome"}),
		predictionDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Time to train, score and select a lineup",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"mode"}),
		solverFallbacks: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solver_fallbacks_total",
			Help:      "Selections that fell back to the greedy split",
		}),
		trainingCVMAE: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_cv_mae",
			Help:      "Cross-validated MAE of the latest learned model",
		}, []string{"mode"}),
		backtestPeriods: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backtest_periods_total",
			Help:      "Backtested periods by outcome",
		}, []string{"outcome"}),
		backtestOverlap: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backtest_overlap",
			Help:      "Overlap between predicted and optimal lineups",
			Buckets:   prometheus.LinearBuckets(0, 1, 12),
		}),
		cacheLookups: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Prediction cache lookups by result",
		}, []string{"result"}),
		httpRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		httpDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObservePrediction(mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(mode, outcome).Inc()
	m.predictionDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) SolverFallback() {
	if m == nil {
		return
	}
	m.solverFallbacks.Inc()
}

func (m *Metrics) SetTrainingMAE(mode string, mae float64) {
	if m == nil {
		return
	}
	m.trainingCVMAE.WithLabelValues(mode).Set(mae)
}

// BacktestPeriod records one period; overlap is observed only when evaluated.
func (m *Metrics) BacktestPeriod(outcome string, overlap int) {
	if m == nil {
		return
	}
	m.backtestPeriods.WithLabelValues(outcome).Inc()
	if outcome == "evaluated" {
		m.backtestOverlap.Observe(float64(overlap))
	}
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTP(route, method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, status).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
