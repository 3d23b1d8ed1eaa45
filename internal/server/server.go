// Package server exposes saved video state over HTTP: the save_user_state
// handler the save-state plugin posts to, the metadata read the player
// configuration is built from, and health and metrics endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/openedx/edx-platform-sub027/internal/cookiestore"
	"github.com/openedx/edx-platform-sub027/internal/logging"
	"github.com/openedx/edx-platform-sub027/internal/userstate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UserHeader carries the authenticated user ID from an upstream proxy.
const UserHeader = "X-User-ID"

// Pinger reports whether the backing stores are reachable; /healthz uses it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Repository is the state store the handlers read and write.
type Repository interface {
	Save(ctx context.Context, userID, blockID string, u userstate.Update) (userstate.Record, error)
	Metadata(ctx context.Context, userID, blockID string, d userstate.MetadataDefaults) (userstate.Metadata, error)
}

// Config wires a Server to its repository and tunes its limits.
type Config struct {
	Repo     Repository
	Pinger   Pinger
	Gatherer prometheus.Gatherer // nil disables /metrics

	// RateLimitRequests per RateLimitWindow per client IP on the save
	// endpoint; 0 disables limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	MaxBodyBytes       int64 // default 64 KiB
	DefaultAutoAdvance bool

	// Sealer, when set, seals the anonymous learner ID cookie.
	Sealer *Sealer

	Logger logging.Logger
}

// Server is the HTTP handler for saved video state.
type Server struct {
	router chi.Router
	cfg    Config
	log    logging.Logger
	hub    *cookiestore.Hub
}

// New builds a Server and its routes, filling unset limits with defaults.
func New(cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{router: r, cfg: cfg, log: logging.OrNop(cfg.Logger), hub: cookiestore.NewHub(nil)}
	r.Use(s.requestLogger)
	s.routes()
	return s
}

// ServeHTTP dispatches to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.cfg.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	if s.cfg.Repo == nil {
		return
	}
	s.router.Route("/xblock/{blockID}/handler", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Group(func(r chi.Router) {
			if s.cfg.RateLimitRequests > 0 {
				r.Use(httprate.LimitByIP(s.cfg.RateLimitRequests, s.cfg.RateLimitWindow))
			}
			r.Post("/save_user_state", s.handleSaveUserState)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.cfg.Pinger != nil {
		if err := s.cfg.Pinger.Ping(r.Context()); err != nil {
			s.log.Warn("health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","error":"storage unreachable"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// SaveStateURL is the save endpoint path for a block.
func SaveStateURL(blockID string) string {
	return "/xblock/" + blockID + "/handler/save_user_state"
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
