package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObservePrediction("ensemble", "ok", 120*time.Millisecond)
	m.ObservePrediction("ensemble", "ok", 80*time.Millisecond)
	m.ObservePrediction("learned", "insufficient_history", 0)
	m.SolverFallback()
	m.BacktestPeriod("evaluated", 8)
	m.BacktestPeriod("skipped", 0)
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.predictions.WithLabelValues("ensemble", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.predictions.WithLabelValues("learned", "insufficient_history")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.solverFallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backtestPeriods.WithLabelValues("skipped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.backtestOverlap))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SetTrainingMAE("ensemble", 1.42)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `lineup_training_cv_mae{mode="ensemble"} 1.42`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePrediction("ensemble", "ok", time.Second)
		m.SolverFallback()
		m.SetTrainingMAE("learned", 1)
		m.BacktestPeriod("evaluated", 11)
		m.CacheLookup(true)
		m.ObserveHTTP("/health", "GET", "200", time.Millisecond)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
