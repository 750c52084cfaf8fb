package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liamcoop/defectcriteria/activation"
	"github.com/liamcoop/defectcriteria/criteria"
	"github.com/liamcoop/defectcriteria/internal/metrics"
	"github.com/liamcoop/defectcriteria/library"
)

const maxBodyBytes = 1 << 20

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Engine   *criteria.Engine
	Contexts *activation.Manager
	Resolver *library.Resolver
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// Checks are probed by the health endpoint, keyed by name.
	Checks map[string]HealthCheck
}

type Server struct {
	engine   *criteria.Engine
	contexts *activation.Manager
	resolver *library.Resolver
	metrics  *metrics.Metrics
	checks   map[string]HealthCheck
	log      *slog.Logger
	router   *chi.Mux
}

func NewServer(d Deps) *Server {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		engine:   d.Engine,
		contexts: d.Contexts,
		resolver: d.Resolver,
		metrics:  d.Metrics,
		checks:   d.Checks,
		log:      log.With("component", "http"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1/procedures", func(r chi.Router) {
		r.Get("/", s.handleListProcedures)
		r.Post("/", s.handleCreateProcedure)

		r.Route("/{procedureId}", func(r chi.Router) {
			r.Get("/", s.handleGetProcedure)
			r.Patch("/", s.handleUpdateProcedure)

			r.Get("/rules", s.handleListRules)
			r.Post("/rules", s.handleCreateRule)

			r.Post("/evaluate", s.handleEvaluate)
		})
	})

	r.Route("/api/v1/rules/{ruleId}", func(r chi.Router) {
		r.Get("/", s.handleGetRule)
		r.Patch("/", s.handleUpdateRule)
		r.Delete("/", s.handleDeleteRule)
	})

	r.Route("/api/v1/contexts", func(r chi.Router) {
		r.Get("/", s.handleListContexts)
		r.Get("/{contextKey}/procedure", s.handleGetContextProcedure)
		r.Put("/{contextKey}/procedure", s.handleSelectContextProcedure)
		r.Post("/{contextKey}/evaluate", s.handleEvaluateContext)
	})

	r.Get("/api/v1/library/priorities/{priorityId}", s.handleGetPriority)

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLog logs every request through slog and records HTTP metrics under
// the matched route pattern.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		s.metrics.ObserveHTTP(r.Method, route, status, elapsed)

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		s.log.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Helper functions

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}

// statusFor maps an engine error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case criteria.IsValidation(err):
		return http.StatusBadRequest
	case criteria.IsNotFound(err):
		return http.StatusNotFound
	case criteria.IsConflict(err):
		return http.StatusConflict
	case criteria.IsDependency(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) respondEngineError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.log.ErrorContext(r.Context(), message, "error", err, "request_id", middleware.GetReqID(r.Context()))
	}
	if status == http.StatusInternalServerError {
		// Unclassified failures do not leak their cause.
		respondError(w, status, message, nil)
		return
	}
	respondError(w, status, message, err)
}
