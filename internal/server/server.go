// Package server exposes the operator-facing admin HTTP surface: REST
// endpoints over the monitor/alert/issue/notification state the core
// maintains, a websocket stream of every event the Reactions Bus
// dispatches, and (when configured) the R2 backup/restore endpoints of
// internal/reliability.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/events"
	"github.com/aristath/sentinel/internal/queue"
	"github.com/aristath/sentinel/internal/registry"
	"github.com/aristath/sentinel/internal/store"
)

// Config is everything Server needs to build its router. R2Backup is
// optional; a nil value disables the /api/backups/r2 routes.
type Config struct {
	Port     int
	DB       *store.DB
	Queue    queue.Queue
	Registry *registry.Registry
	Bus      *events.Bus
	R2Backup *R2BackupHandlers
	Log      zerolog.Logger
}

// Server wraps an http.Server bound to a chi.Router built from Config.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

// New builds a Server. It does not start listening - call Start for that.
func New(cfg Config) *Server {
	log := cfg.Log.With().Str("component", "server").Logger()

	monitors := newMonitorHandlers(cfg.DB, cfg.Queue, cfg.Registry, log)
	stream := newEventsStream(cfg.Bus, log)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", monitors.HandleHealth)

	router.Route("/api/monitors", func(r chi.Router) {
		r.Get("/", monitors.HandleListMonitors)
		r.Get("/{id}", monitors.HandleGetMonitor)
		r.Get("/{id}/alerts", monitors.HandleListAlerts)
	})
	router.Route("/api/alerts", func(r chi.Router) {
		r.Get("/{id}/issues", monitors.HandleListIssues)
		r.Post("/{id}/acknowledge", monitors.HandleAlertAcknowledge)
		r.Post("/{id}/lock", monitors.HandleAlertLock)
		r.Post("/{id}/solve", monitors.HandleAlertSolve)
	})
	router.Post("/api/issues/{id}/drop", monitors.HandleIssueDrop)
	router.Get("/api/notifications", monitors.HandleListNotifications)

	router.Get("/api/events/stream", stream.ServeHTTP)

	if cfg.R2Backup != nil {
		router.Route("/api/backups/r2", func(r chi.Router) {
			r.Get("/", cfg.R2Backup.HandleListBackups)
			r.Post("/", cfg.R2Backup.HandleCreateBackup)
			r.Post("/test", cfg.R2Backup.HandleTestConnection)
			r.Delete("/{filename}", cfg.R2Backup.HandleDeleteBackup)
			r.Get("/{filename}/download", cfg.R2Backup.HandleDownloadBackup)
			r.Post("/restore", cfg.R2Backup.HandleStageRestore)
			r.Delete("/restore/staged", cfg.R2Backup.HandleCancelRestore)
		})
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         httpAddr(cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0, // the websocket stream and backup download routes hold connections open
			IdleTimeout:  60 * time.Second,
		},
		log: log,
	}
}

func httpAddr(port int) string {
	if port <= 0 {
		port = 8080
	}
	return ":" + strconv.Itoa(port)
}

// Start blocks serving HTTP until Shutdown is called, returning
// http.ErrServerClosed in that case (not treated as a failure by callers).
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("admin http server starting")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server, waiting for in-flight
// requests (including open websocket streams) to finish up to ctx's
// deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
