package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordTurn("delivered")
	m.ObserveProvider("stt", "mock", time.Second, errors.New("x"))
	m.RecordSafetyEvent("suicide")
	m.RecordCleanupFailures(2)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecorders(t *testing.T) {
	m := New("test")
	m.RecordTurn("crisis")
	m.RecordTurn("crisis")
	m.ObserveProvider("llm", "ark", 200*time.Millisecond, errors.New("timeout"))
	m.RecordSafetyEvent("self_harm")

	body := scrape(t, m.Handler())
	assert.Contains(t, body, `test_turns_total{outcome="crisis"} 2`)
	assert.Contains(t, body, `test_provider_errors_total{capability="llm",provider="ark"} 1`)
	assert.Contains(t, body, `test_safety_events_total{category="self_harm"} 1`)
	assert.Contains(t, body, `test_provider_duration_seconds_count{capability="llm",provider="ark"} 1`)
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New("test")
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))

	body := scrape(t, r)
	assert.Contains(t, body, `test_http_requests_total{method="GET",route="/sessions/{id}",status="418"} 1`)
	assert.False(t, strings.Contains(body, "/sessions/abc"))
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
