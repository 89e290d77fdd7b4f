package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/runnable/runnable-api/internal/api/handler"
	mw "github.com/runnable/runnable-api/internal/api/middleware"
	"github.com/runnable/runnable-api/internal/config"
	"github.com/runnable/runnable-api/internal/core"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	router         chi.Router
	logger         zerolog.Logger
	services       *core.Services
	db             Pinger
	temporalClient temporalclient.Client
	cfg            *config.Config
	onCrash        func(any)
}

// NewServer wires the services onto coreDB and the build service. onCrash
// is called after a handler panic has been answered.
func NewServer(logger zerolog.Logger, coreDB *pgxpool.Pool, temporalClient temporalclient.Client, build core.BuildService, cfg *config.Config, onCrash func(any)) *Server {
	services := core.NewServices(coreDB, temporalClient, build, core.Options{
		DockerRegistry:   cfg.DockerRegistry,
		ContainerTimeout: cfg.ContainerTimeout,
		CleanupRetention: cfg.CleanupRetention,
	}, logger)
	return newServer(logger, services, coreDB, temporalClient, cfg, onCrash)
}

func newServer(logger zerolog.Logger, services *core.Services, db Pinger, temporalClient temporalclient.Client, cfg *config.Config, onCrash func(any)) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		logger:         logger,
		services:       services,
		db:             db,
		temporalClient: temporalClient,
		cfg:            cfg,
		onCrash:        onCrash,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(mw.Crash(s.logger, s.onCrash))
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	errs := handler.Errors{Debug: !s.cfg.IsProduction()}

	s.router.Group(func(r chi.Router) {
		r.Use(mw.Auth(s.services.User))

		runnable := handler.NewRunnable(s.services.Publish, s.services.Container, errs)
		r.Route("/users/me/runnables", func(r chi.Router) {
			r.Post("/", runnable.Fork)
			r.Get("/", runnable.List)
			r.Get("/{id}", runnable.Get)
			r.Patch("/{id}", runnable.Update)
			r.Delete("/{id}", runnable.Delete)
			r.Post("/{id}/tags", runnable.Tag)
			r.Delete("/{id}/tags/{tagId}", runnable.Untag)
		})

		image := handler.NewImage(s.services.Publish, s.services.Image, errs)
		r.Route("/runnables", func(r chi.Router) {
			r.Post("/", image.Publish)
			r.Get("/{id}", image.Get)
			r.Put("/{id}", image.Republish)
			r.Delete("/{id}", image.Delete)
			r.Post("/{id}/sync", image.Sync)
			r.Post("/{id}/votes", image.Vote)
			r.Put("/{id}/stats/{stat}", image.IncrementStat)
		})

		cleanup := handler.NewCleanup(s.services.Cleanup, errs)
		r.Get("/cleanup", cleanup.Run)
	})
}

func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) Services() *core.Services {
	return s.services
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.db.Ping(ctx); err != nil {
		checks["core_db"] = err.Error()
		healthy = false
	} else {
		checks["core_db"] = "ok"
	}

	if s.temporalClient != nil {
		if _, err := s.temporalClient.CheckHealth(ctx, &temporalclient.CheckHealthRequest{}); err != nil {
			checks["temporal"] = err.Error()
			healthy = false
		} else {
			checks["temporal"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
