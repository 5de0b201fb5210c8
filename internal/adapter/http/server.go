// Package http exposes the batch run over HTTP: liveness, readiness with
// unit progress, a status snapshot, and Prometheus metrics.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BatchReporter exposes the state of the batch run to the HTTP surface.
type BatchReporter interface {
	// CheckReadiness returns nil once the batch has made progress.
	CheckReadiness(ctx context.Context) error
	// Progress reports unit counts so far.
	Progress() (completed, failed, skipped int)
}

// statusBody is the JSON payload of /readyz and /statusz.
type statusBody struct {
	Status    string `json:"status"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Error     string `json:"error,omitempty"`
}

// Server exposes health, readiness, status, and metrics HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server over the given batch reporter with
// /healthz, /readyz, /statusz, and /metrics routes.
func NewServer(addr string, batch BatchReporter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(batch))
	mux.HandleFunc("GET /statusz", handleStatus(batch))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady serves readiness probes: 503 with the blocking reason until
// the batch completes its first unit, 200 with progress counts after.
func handleReady(batch BatchReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		body := progressBody(batch)
		if err := batch.CheckReadiness(ctx); err != nil {
			body.Status = "not ready"
			body.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		body.Status = "ready"
		writeJSON(w, http.StatusOK, body)
	}
}

// handleStatus serves the same progress snapshot unconditionally with 200,
// for operators watching a run rather than probes gating traffic.
func handleStatus(batch BatchReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		body := progressBody(batch)
		body.Status = "running"
		writeJSON(w, http.StatusOK, body)
	}
}

func progressBody(batch BatchReporter) statusBody {
	completed, failed, skipped := batch.Progress()
	return statusBody{Completed: completed, Failed: failed, Skipped: skipped}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort health response
}
