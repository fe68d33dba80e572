package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/proxyops/proxy-pool/internal/application"
	apperrors "github.com/proxyops/proxy-pool/internal/errors"
	"github.com/proxyops/proxy-pool/pkg/logger"
)

// Server exposes the pool over HTTP. Mutating operations go through the
// application service so errors surface with proper status codes; the
// acquisition path also offers a degraded facade variant.
type Server struct {
	pool   *application.PoolService
	facade *application.Facade
	router *mux.Router
	http   *http.Server
	logger *logger.Logger
}

// ServerOptions configures the HTTP listener.
type ServerOptions struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewServer builds the HTTP surface and its routes.
func NewServer(pool *application.PoolService, facade *application.Facade, opts ServerOptions, log *logger.Logger) *Server {
	s := &Server{
		pool:   pool,
		facade: facade,
		router: mux.NewRouter(),
		logger: log.APILogger(),
	}
	s.routes()

	s.http = &http.Server{
		Addr:         opts.Address,
		Handler:      s.loggingMiddleware(s.router),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/proxies", s.handleAddProxy).Methods(http.MethodPost)
	api.HandleFunc("/proxies", s.handleListStatistics).Methods(http.MethodGet)
	api.HandleFunc("/proxies/acquire", s.handleAcquireProxy).Methods(http.MethodPost)
	api.HandleFunc("/proxies/{id}", s.handleRemoveProxy).Methods(http.MethodDelete)
	api.HandleFunc("/proxies/{id}/report", s.handleReportResult).Methods(http.MethodPost)
	api.HandleFunc("/proxies/{id}/quarantine", s.handleForceQuarantine).Methods(http.MethodPost)
	api.HandleFunc("/proxies/{id}/recover", s.handleForceRecovery).Methods(http.MethodPost)
	api.HandleFunc("/proxies/{id}/check", s.handleCheckProxy).Methods(http.MethodPost)
	api.HandleFunc("/health-check", s.handleCheckPool).Methods(http.MethodPost)
	api.HandleFunc("/statistics", s.handleListStatistics).Methods(http.MethodGet)

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.WithField("address", s.http.Addr).Info("HTTP API listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("status", recorder.status).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Debug("Request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// writeJSON writes a JSON body with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			s.logger.WithError(err).Warn("Failed to encode response body")
		}
	}
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// writeError maps a pool error onto its HTTP status and envelope.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := apperrors.GetHTTPStatusCode(err)
	body := errorBody{
		Error: err.Error(),
		Code:  string(apperrors.GetErrorCode(err)),
	}
	var ppErr *apperrors.ProxyPoolError
	if errors.As(err, &ppErr) {
		body.Details = ppErr.Metadata
	}
	s.writeJSON(w, status, body)
}
