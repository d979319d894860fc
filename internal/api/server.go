package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/dt-engine/internal/config"
	"github.com/snarg/dt-engine/internal/database"
	"github.com/snarg/dt-engine/internal/metrics"
	"github.com/snarg/dt-engine/internal/mqttclient"
	"github.com/snarg/dt-engine/internal/storage"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// ServerDeps bundles the collaborators the HTTP layer exposes.
type ServerDeps struct {
	DB        *database.DB
	Store     storage.Store
	MQTT      *mqttclient.Client
	Submitter JobSubmitter
	Queue     QueueStatsSource
	Live      LiveDataSource
	Version   string
	StartTime time.Time
}

func NewServer(cfg *config.Config, deps ServerDeps, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORSWithOrigins(cfg.CORSOrigins))
	if cfg.RateLimitRPS > 0 {
		r.Use(RateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	// Unauthenticated: health and metrics
	health := NewHealthHandler(deps.DB, deps.MQTT, deps.Live, deps.Queue, deps.Version, deps.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Authenticated API
	jobs := NewJobsHandler(deps.DB, deps.Store, deps.Submitter, deps.Queue, log)
	events := NewEventsHandler(deps.Live)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Group(func(r chi.Router) {
			r.Use(metrics.InstrumentHandler)
			jobs.Routes(r)
			// Reprocessing re-runs the whole pipeline, so it stays closed
			// on deployments without a token.
			r.With(RequireAuth(cfg.AuthToken)).Post("/jobs/{id}/reprocess", jobs.Reprocess)
		})
		// SSE needs the raw http.Flusher, so it skips the metrics wrapper.
		events.Routes(r)
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
