// Package adminhttp is the side-channel HTTP surface described by
// spec.md's administrative HTTP expansion: a small server, separate
// from the RESP port, exposing health, Prometheus metrics, and an
// INFO-equivalent debug blob. It never accepts data-plane commands.
//
// Grounded on the teacher's cmd/cc-backend/server.go: mux.NewRouter()
// plus the gorilla/handlers CompressHandler/RecoveryHandler/
// CustomLoggingHandler stack, and its serverStart/serverShutdown split
// between building the listener and running http.Server.Serve.
package adminhttp

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/corekv/corekv/internal/corelog"
	"github.com/corekv/corekv/internal/observability"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config wires adminhttp to the rest of the process without importing
// server/dispatch/maintenance directly, the same caller-assembles-the-
// struct approach observability.RenderInfo already uses to avoid an
// import cycle.
type Config struct {
	Addr     string
	Registry *prometheus.Registry
	// InfoProvider builds the current INFO-equivalent snapshot on demand.
	InfoProvider func() observability.InfoInput
	// MetricsSnapshot builds the current counter snapshot for the
	// line-protocol export route; nil disables /metrics/influx.
	MetricsSnapshot func() observability.Snapshot
	// Healthy reports whether the RESP listener is currently accepting
	// connections; nil means always healthy.
	Healthy func() bool
}

// Server is the admin HTTP listener. A zero-value Config.Addr disables
// it entirely (the caller simply doesn't start one).
type Server struct {
	cfg    Config
	router *mux.Router
	http   *http.Server
}

func New(cfg Config) *Server {
	s := &Server{cfg: cfg}
	s.router = mux.NewRouter()
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/debug/info", s.handleDebugInfo).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics/influx", s.handleMetricsInflux).Methods(http.MethodGet)

	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.router.Use(handlers.CompressHandler)
	s.router.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))

	logged := handlers.CustomLoggingHandler(io.Discard, s.router, func(_ io.Writer, params handlers.LogFormatterParams) {
		corelog.Debugf("%s %s (%d, %dms)",
			params.Request.Method, params.URL.RequestURI(), params.StatusCode,
			time.Since(params.TimeStamp).Milliseconds())
	})

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      logged,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until Shutdown is called or the listener fails.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Healthy != nil && !s.cfg.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "not ready\n")
		return
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok\n")
}

func (s *Server) handleMetricsInflux(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MetricsSnapshot == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	line, err := observability.EncodeLineProtocol("corekv", s.cfg.MetricsSnapshot(), time.Now())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(line)
}

func (s *Server) handleDebugInfo(w http.ResponseWriter, r *http.Request) {
	section := strings.TrimPrefix(r.URL.Query().Get("section"), "#")
	var in observability.InfoInput
	if s.cfg.InfoProvider != nil {
		in = s.cfg.InfoProvider()
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, observability.RenderInfo(section, in))
}
