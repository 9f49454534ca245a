package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/rainfall-idf-service/internal/adapter/export"
	"github.com/couchcryptid/rainfall-idf-service/internal/domain"
)

// maxRequestBytes bounds a synchronous analysis request body.
const maxRequestBytes = 32 << 20

// Analyzer runs one analysis request to completion.
type Analyzer interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) domain.AnalysisReport
}

// Catalog lists the municipalities that have disaggregation coefficients.
type Catalog interface {
	States() []string
	Municipalities(state string) []string
}

// Server exposes health, readiness, and metrics endpoints plus a synchronous
// analysis API for callers that do not go through Kafka.
type Server struct {
	httpServer *http.Server
	analyzer   Analyzer
	catalog    Catalog
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /v1 analysis routes. POST /v1/analyses?format=xlsx answers succeeded
// analyses with a spreadsheet instead of JSON.
func NewServer(addr string, ready sharedobs.ReadinessChecker, analyzer Analyzer, catalog Catalog, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		analyzer: analyzer,
		catalog:  catalog,
		logger:   logger,
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(middleware.Timeout(55 * time.Second))
		r.Post("/analyses", s.handleAnalyze)
		r.Get("/states", s.handleStates)
		r.Get("/municipalities", s.handleMunicipalities)
	})

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

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req domain.AnalysisRequest
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxRequestBytes), &req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		render.Status(r, status)
		render.JSON(w, r, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	report := s.analyzer.Analyze(r.Context(), req)
	s.logger.DebugContext(r.Context(), "synchronous analysis",
		"request_id", report.RequestID,
		"http_request_id", middleware.GetReqID(r.Context()),
		"status", report.Status,
	)

	if r.URL.Query().Get("format") == "xlsx" && report.Succeeded() {
		s.writeWorkbook(w, r, report)
		return
	}

	render.Status(r, statusFor(report))
	render.JSON(w, r, report)
}

// writeWorkbook streams the report as a spreadsheet. The workbook is built in
// memory first so a failure can still be answered with JSON.
func (s *Server) writeWorkbook(w http.ResponseWriter, r *http.Request, report domain.AnalysisReport) {
	var buf bytes.Buffer
	if err := export.Write(&buf, report); err != nil {
		s.logger.ErrorContext(r.Context(), "export workbook failed", "error", err, "request_id", report.RequestID)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{Error: "export workbook: " + err.Error()})
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "idf_"+report.ID+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// statusFor maps a report to an HTTP status. Analyses that ran but could not
// produce a curve are 422; malformed requests are 400.
func statusFor(report domain.AnalysisReport) int {
	if report.Succeeded() {
		return http.StatusOK
	}
	switch report.Failure.Kind {
	case domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindUnsupported:
		return http.StatusNotImplemented
	case domain.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string][]string{"states": nonNil(s.catalog.States())})
}

func (s *Server) handleMunicipalities(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	render.JSON(w, r, map[string]any{
		"state":          state,
		"municipalities": nonNil(s.catalog.Municipalities(state)),
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
