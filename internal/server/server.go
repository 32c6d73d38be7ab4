// Package server exposes the business store, scoring and research jobs over
// HTTP: a JSON API, CSV/XLSX exports, Prometheus metrics and a small
// server-rendered dashboard.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hvac-targets/internal/metrics"
	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/pipeline"
	"github.com/sells-group/hvac-targets/internal/scoring"
	"github.com/sells-group/hvac-targets/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// Pipeline is the subset of the orchestrator the handlers drive.
type Pipeline interface {
	Launch(ctx context.Context, q model.ResearchQuery) (*model.ResearchJob, error)
	ScoreBusiness(ctx context.Context, id int64) (*scoring.Score, error)
	ScoreAll(ctx context.Context) (pipeline.ScoreSummary, error)
	EnrichBusiness(ctx context.Context, id int64) (*model.Business, error)
}

// Server holds the handler dependencies.
type Server struct {
	store         store.Store
	pipeline      Pipeline
	jobCtx        context.Context
	corsOrigins   []string
	defaultRegion string
	pages         *template.Template
}

// Option configures a Server.
type Option func(*Server)

// WithCORSOrigins sets the allowed cross-origin callers. Empty allows any.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithJobContext sets the context research jobs started over HTTP run
// under. It should live as long as the server.
func WithJobContext(ctx context.Context) Option {
	return func(s *Server) { s.jobCtx = ctx }
}

// WithDefaultRegion sets the region used when a research request omits one.
func WithDefaultRegion(region string) Option {
	return func(s *Server) { s.defaultRegion = region }
}

// New creates a Server.
func New(st store.Store, p Pipeline, opts ...Option) *Server {
	s := &Server{
		store:    st,
		pipeline: p,
		jobCtx:   context.Background(),
		pages: template.Must(template.New("pages").Funcs(template.FuncMap{
			"join": strings.Join,
			"date": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04") },
		}).ParseFS(templateFS, "templates/*.html")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observe)

	origins := s.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/businesses", s.handleListBusinesses)
		r.Post("/businesses", s.handleCreateBusiness)
		r.Route("/businesses/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetBusiness)
			r.Put("/", s.handleUpdateBusiness)
			r.Delete("/", s.handleDeleteBusiness)
			r.Post("/score", s.handleScoreBusiness)
			r.Post("/enrich", s.handleEnrichBusiness)
		})
		r.Post("/score", s.handleScoreAll)
		r.Post("/research", s.handleStartResearch)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/export.csv", s.handleExportCSV)
		r.Get("/export.xlsx", s.handleExportXLSX)
	})

	r.Get("/", s.handleDashboard)
	r.Get("/businesses/{id}", s.handleBusinessPage)
	return r
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server: shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("server: listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

// observe records request counts and latency by route pattern.
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		d := time.Since(start)
		metrics.ObserveHTTP(r.Method, route, status, d)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", d),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
