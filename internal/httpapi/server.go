// Package httpapi is the ops HTTP surface of smsboxd.
//
// Routes:
//
//	GET  /healthz
//	GET  /metrics
//	GET  /v1/stats
//	GET  /v1/messages?folder=&limit=&offset=
//	GET  /v1/messages/{id}
//	POST /v1/events
//	POST /v1/outbox
//	POST /v1/messages/{id}/resend
//
// POST routes require an HS256 bearer token when a JWT key is configured.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rbaliyan/smsbox"
	"github.com/rbaliyan/smsbox/store"
)

// maxBodyBytes bounds request bodies. A received message carries at most a
// few hundred parts of 160 characters.
const maxBodyBytes = 256 << 10

// Server serves the ops API for one smsbox.Service.
type Server struct {
	svc      *smsbox.Service
	logger   *slog.Logger
	jwtKey   []byte
	metrics  *metrics
	validate *validator.Validate
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithJWTKey requires HS256 bearer tokens signed with key on POST routes.
// An empty key disables authentication.
func WithJWTKey(key string) Option {
	return func(s *Server) {
		s.jwtKey = []byte(key)
	}
}

// New creates the server and its routes.
func New(svc *smsbox.Service, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		logger:   slog.Default(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newMetrics(svc.Stats, s.logger)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.metrics.middleware)
	r.Use(chimw.RequestID)
	r.Use(s.logRequests)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.stats)
		r.Get("/messages", s.listMessages)
		r.Get("/messages/{id}", s.getMessage)

		r.Group(func(r chi.Router) {
			if len(s.jwtKey) > 0 {
				r.Use(s.requireToken)
			}
			r.Use(chimw.RequestSize(maxBodyBytes))
			r.Post("/events", s.postEvent)
			r.Post("/outbox", s.enqueue)
			r.Post("/messages/{id}/resend", s.resend)
		})
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			s.logger.Debug("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"latency", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	if _, ok := smsbox.IsValidationError(err); ok {
		return http.StatusBadRequest
	}
	switch {
	case errors.Is(err, smsbox.ErrNotConnected), errors.Is(err, smsbox.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidFolder),
		errors.Is(err, store.ErrEmptyAddress),
		errors.Is(err, store.ErrInvalidID),
		errors.Is(err, smsbox.ErrNoParts),
		errors.Is(err, smsbox.ErrInvalidMessage),
		errors.Is(err, smsbox.ErrAddressTooLong),
		errors.Is(err, smsbox.ErrBodyTooLarge),
		errors.Is(err, smsbox.ErrInvalidContent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}
