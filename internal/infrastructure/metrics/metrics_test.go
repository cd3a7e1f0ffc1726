package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAward("quiz", "coding", 10, true)
		m.ObserveAchievement("rare")
		m.ObserveJoin("library", "joined")
		m.ObserveSweep(3)
		m.ObservePublish("progress.xp_awarded")
		m.ObserveHandlerFailure("progress.xp_awarded")
		m.ObserveJob("rebuild_leaderboard", time.Second, nil)
		m.ObserveHTTP(http.MethodGet, "GET /health", 200, time.Millisecond)
		m.SetBreakerState("leaderboard_index", 1)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Recording(t *testing.T) {
	m := New()

	m.ObserveAward("quiz", "", 40, true)
	m.ObserveAward("quiz", "coding", 10, false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.xpAwarded.WithLabelValues("quiz", "none")))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.xpAwardedTotal.WithLabelValues("quiz")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.levelUps))

	m.ObserveJob("sweep", time.Second, errors.New("x"))
	m.ObserveJob("sweep", time.Second, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("sweep", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("sweep", "success")))

	m.ObserveSweep(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.presenceSwept))

	m.SetBreakerState("leaderboard_index", 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.breakerState.WithLabelValues("leaderboard_index")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveJoin("library", "joined")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `progression_campus_joins_total{location="library",outcome="joined"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
