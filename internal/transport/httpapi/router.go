// Package httpapi exposes the portal's mutations, downloads and live socket
// over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	perrors "citizen-portal/internal/common/errors"
	"citizen-portal/internal/common/logger"
	"citizen-portal/internal/models"
	"citizen-portal/internal/workflow"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UserIDHeader carries the authenticated caller, set by the fronting
// auth proxy.
const UserIDHeader = "X-User-ID"

// Workflow is the action surface behind /api.
type Workflow interface {
	Create(ctx context.Context, in workflow.CreateInput) (*models.ApplicationRecord, error)
	Get(ctx context.Context, kind models.Kind, id string) (*models.ApplicationRecord, error)
	List(ctx context.Context, kind models.Kind) ([]*models.ApplicationRecord, error)
	Update(ctx context.Context, kind models.Kind, id string, in workflow.UpdateInput) (*models.ApplicationRecord, error)
	Resolve(ctx context.Context, kind models.Kind, id, outcome string) (*models.ApplicationRecord, error)
	Delete(ctx context.Context, kind models.Kind, id string) error
	Download(ctx context.Context, kind models.Kind, id string, format models.Format) (models.Artifact, *models.ApplicationRecord, error)
}

// Pinger is a readiness dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Workflow       Workflow
	Socket         http.Handler
	Logger         logger.Logger
	ReadyChecks    map[string]Pinger
	RequestTimeout time.Duration
}

type Server struct {
	workflow Workflow
	logger   logger.Logger
	errors   *perrors.ErrorHandler
	checks   map[string]Pinger
}

// NewRouter builds the chi router for the whole HTTP surface.
func NewRouter(opts Options) http.Handler {
	log := logger.ForComponent(opts.Logger, "http")
	s := &Server{
		workflow: opts.Workflow,
		logger:   log,
		errors:   perrors.NewErrorHandler(log),
		checks:   opts.ReadyChecks,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	if opts.Socket != nil {
		r.Handle("/socket", opts.Socket)
	}

	r.Route("/api/{kind}", func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(opts.RequestTimeout))
		}
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Get("/{id}", s.handleGet)
		r.Patch("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
		r.Post("/{id}/resolve", s.handleResolve)
		r.Get("/{id}/download", s.handleDownload)
	})

	return r
}

func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.Debug("request handled", map[string]interface{}{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"durationMs": time.Since(start).Milliseconds(),
				"requestId":  middleware.GetReqID(r.Context()),
			})
		})
	}
}
