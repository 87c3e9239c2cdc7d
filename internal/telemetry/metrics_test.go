package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())

	m.ReportSubmitted("artifact")
	m.ReportSubmitted("artifact")
	m.ReportFinished("artifact", "completed", 2*time.Second)
	m.QueueState("artifact", 3, 1, 1)
	m.UnitAcquired("predictor", "fallback")
	m.PersistFailed()
	m.CacheState(7, 2)
	m.StageCompleted("predict", time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.reportsSubmitted.WithLabelValues("artifact")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.reportsFinished.WithLabelValues("artifact", "completed")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.queueDepth.WithLabelValues("artifact")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.unitAcquisitions.WithLabelValues("predictor", "fallback")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.persistFailures))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.cacheEntries))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.cacheEvictions))
}

func TestMetrics_IsolatedRegistries(t *testing.T) {
	t.Parallel()

	// registering twice on separate registries must not panic
	a := New(prometheus.NewRegistry())
	b := New(prometheus.NewRegistry())
	a.PersistFailed()

	assert.Equal(t, float64(0), testutil.ToFloat64(b.persistFailures))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.ReportSubmitted("artifact")
		m.ReportFinished("artifact", "failure", time.Second)
		m.StageCompleted("predict", time.Second)
		m.QueueState("artifact", 0, 0, 0)
		m.UnitAcquired("predictor", "idle")
		m.PersistFailed()
		m.CacheState(0, 0)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	m.ReportSubmitted("questionnaire")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `scry_reports_scheduler_reports_submitted_total{kind="questionnaire"} 1`)
}
