// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

// Package observability serves Prometheus metrics and the liveness and
// readiness probes of the memberauth server on a separate listener.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// DefaultCheckTimeout bounds a single readiness probe.
const DefaultCheckTimeout = 2 * time.Second

// Check probes one backend. A nil error means the backend answers.
type Check func(ctx context.Context) error

// Checks maps backend names ("database", "sessions") to their probes.
type Checks map[string]Check

// Report is the body of the readiness probe.
type Report struct {
	Ready bool `json:"ready"`
	// Checks holds "ok" or the failure text per backend.
	Checks map[string]string `json:"checks,omitempty"`
}

// Run probes every backend concurrently under one deadline.
func (c Checks) Run(ctx context.Context, timeout time.Duration) Report {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report := Report{Ready: true, Checks: make(map[string]string, len(c))}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range c {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := check(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Ready = false
				report.Checks[name] = err.Error()
				return
			}
			report.Checks[name] = "ok"
		}()
	}
	wg.Wait()
	return report
}

// Failing returns the names of failed checks, sorted.
func (r Report) Failing() []string {
	var out []string
	for name, state := range r.Checks {
		if state != "ok" {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// RegisterFunc registers additional collectors, such as auth.RegisterMetrics.
type RegisterFunc func(prometheus.Registerer)

// Metrics contains the HTTP metrics of the memberauth server.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	// BackendUp is 1 when the named backend passed its last readiness check.
	BackendUp *prometheus.GaugeVec
}

// NewMetrics creates and registers the HTTP metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memberauth_http_requests_total",
				Help: "Total number of HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memberauth_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		BackendUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "memberauth_backend_up",
				Help: "Whether a backend passed its last readiness check",
			},
			[]string{"backend"},
		),
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.BackendUp)
	return m
}

func (m *Metrics) observe(r Report) {
	for name, state := range r.Checks {
		up := 0.0
		if state == "ok" {
			up = 1
		}
		m.BackendUp.WithLabelValues(name).Set(up)
	}
}

// Server serves /metrics, /healthz/liveness and /healthz/readiness.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	checks     Checks
	running    atomic.Bool
}

// NewServer creates an observability server for addr ("127.0.0.1:9100",
// ":9100"). Readiness passes when every check passes; with no checks the
// server is always ready. Each register func is called once with the
// server's private registry.
func NewServer(addr string, checks Checks, register ...RegisterFunc) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics := NewMetrics(registry)
	for _, fn := range register {
		fn(registry)
	}

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  metrics,
		checks:   checks,
	}
}

// Metrics returns the HTTP metrics for the web middleware.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start listens on the configured address and serves in the background.
// The returned channel receives a serve failure, if any, and is closed when
// the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Handler returns the metrics and health probe routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("GET /healthz/liveness", s.handleLiveness)
	mux.HandleFunc("GET /healthz/readiness", s.handleReadiness)
	return mux
}

// Stop gracefully shuts down the server. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // client may disconnect
	w.Write([]byte("ok\n"))
}

// handleReadiness answers 200 when the database and session backend pass
// their checks and 503 otherwise, with a Report body either way.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	report := s.checks.Run(r.Context(), DefaultCheckTimeout)
	s.metrics.observe(report)
	if !report.Ready {
		slog.Debug("readiness check failed", "failing", report.Failing())
	}

	w.Header().Set("Content-Type", "application/json")
	if report.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(report)
}
