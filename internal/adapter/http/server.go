package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/monitoring-gap-etl/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ResultsProvider exposes the report of the most recent completed run.
type ResultsProvider interface {
	LatestReport() (domain.RunReport, bool)
}

// Server exposes health, readiness, metrics and results HTTP endpoints.
type Server struct {
	httpServer *http.Server
	results    ResultsProvider
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// /results and /results/{source} routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, results ResultsProvider, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		results: results,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /results", s.handleResults)
	mux.HandleFunc("GET /results/{source}", s.handleSourceResults)

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

func (s *Server) handleResults(w http.ResponseWriter, _ *http.Request) {
	report, ok := s.results.LatestReport()
	if !ok {
		sharedobs.WriteJSON(w, http.StatusServiceUnavailable, errorBody("no analysis run has completed yet"))
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, report)
}

func (s *Server) handleSourceResults(w http.ResponseWriter, r *http.Request) {
	report, ok := s.results.LatestReport()
	if !ok {
		sharedobs.WriteJSON(w, http.StatusServiceUnavailable, errorBody("no analysis run has completed yet"))
		return
	}
	label := r.PathValue("source")
	src, ok := report.Source(label)
	if !ok {
		sharedobs.WriteJSON(w, http.StatusNotFound, errorBody("unknown source "+label))
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, src)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
