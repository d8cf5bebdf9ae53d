// Package api is the HTTP surface of the file service: the change event
// webhook, asset creation, health checks and Prometheus metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/EGF2/file/pkg/lifecycle"
)

// Options configures the HTTP surface
type Options struct {
	// Kinds resolves an asset kind to its derivative sizes
	Kinds func(kind string) []lifecycle.Dimensions

	// Ready checks backing services for /readyz
	Ready func(ctx context.Context) error

	// MaxEventBytes bounds webhook bodies (default 10 MiB)
	MaxEventBytes int64

	Logger *slog.Logger
}

// Server routes HTTP requests to the pipeline
type Server struct {
	events *EventsHandler
	files  *FilesHandler
	ready  func(ctx context.Context) error
	opts   Options
	logger *slog.Logger
}

func NewServer(p *lifecycle.Pipeline, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Kinds == nil {
		opts.Kinds = func(string) []lifecycle.Dimensions { return nil }
	}
	if opts.MaxEventBytes <= 0 {
		opts.MaxEventBytes = 10 << 20
	}
	return &Server{
		events: NewEventsHandler(p.Dispatcher(), opts.Logger),
		files:  NewFilesHandler(p.Assets(), opts.Kinds, opts.Logger),
		ready:  opts.Ready,
		opts:   opts,
		logger: opts.Logger,
	}
}

// Routes returns the root router
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)

	r.Get("/healthcheck", s.Healthcheck)
	r.Get("/readyz", s.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.With(RequestSizeLimitMiddleware(s.opts.MaxEventBytes)).Post("/events", s.events.Receive)
		r.Get("/new_image", s.files.NewFile)
		r.Get("/new_file", s.files.NewFile)
	})
	return r
}

// Healthcheck reports liveness
func (s *Server) Healthcheck(w http.ResponseWriter, r *http.Request) {
	render.PlainText(w, r, http.StatusText(http.StatusOK))
}

// Readyz reports whether backing services are reachable
func (s *Server) Readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("Readiness check failed", "error", err)
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"status": "fail", "error": err.Error()})
			return
		}
	}
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// errorResponse is the JSON body of every error reply
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: errorBody{
		Code:      code,
		Message:   message,
		RequestID: middleware.GetReqID(r.Context()),
	}})
}
