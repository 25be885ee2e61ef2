package adminhttp

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/corekv/corekv/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestHealthzReportsStatus(t *testing.T) {
	healthy := true
	s := New(Config{
		Registry: prometheus.NewRegistry(),
		Healthy:  func() bool { return healthy },
	})

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	healthy = false
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsExposesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "corekv_test_total"})
	c.Inc()
	reg.MustRegister(c)

	s := New(Config{Registry: reg})
	r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "corekv_test_total")
}

func TestDebugInfoRendersSection(t *testing.T) {
	s := New(Config{
		Registry: prometheus.NewRegistry(),
		InfoProvider: func() observability.InfoInput {
			return observability.InfoInput{Version: "corekv-test", StartedAt: time.Now()}
		},
	})

	r := httptest.NewRequest(http.MethodGet, "/debug/info?section=server", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "corekv_version:corekv-test")
	require.NotContains(t, w.Body.String(), "# Clients")
}

func TestMetricsInfluxRendersLineProtocol(t *testing.T) {
	s := New(Config{
		Registry: prometheus.NewRegistry(),
		MetricsSnapshot: func() observability.Snapshot {
			return observability.Snapshot{CommandsTotal: 42, ConnectedClients: 3}
		},
	})

	r := httptest.NewRequest(http.MethodGet, "/metrics/influx", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "corekv ")
	require.Contains(t, w.Body.String(), "commands_total=42i")
}

func TestMetricsInfluxNotFoundWhenUnconfigured(t *testing.T) {
	s := New(Config{Registry: prometheus.NewRegistry()})

	r := httptest.NewRequest(http.MethodGet, "/metrics/influx", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)

	require.Equal(t, http.StatusNotFound, w.Code)
}
