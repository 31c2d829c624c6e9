// Package server hosts the job status API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/threeoaks/csvpipe/internal/config"
	"github.com/threeoaks/csvpipe/internal/server/handlers"
	"github.com/threeoaks/csvpipe/internal/server/middleware"
	"github.com/threeoaks/csvpipe/pkg/jobstore"
)

// Server is the status API HTTP server.
type Server struct {
	cfg    config.ServerConfig
	router chi.Router
	logger *zap.Logger
}

// New builds the server and its route table.
func New(cfg config.ServerConfig, jobs jobstore.Store, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		handlers.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		handlers.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
	})

	jobsHandler := handlers.NewJobs(jobs, logger)
	r.Get("/jobs", jobsHandler.MissingID)
	r.Get("/jobs/", jobsHandler.MissingID)
	r.Get("/jobs/{jobID}", jobsHandler.Get)

	r.Get("/healthz", handlers.Healthz)
	r.Get("/version", handlers.Version(version))

	return &Server{cfg: cfg, router: r, logger: logger}
}

// Handler exposes the route table for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.cfg.Port
}

// Run serves until ctx is cancelled, then shuts down gracefully within
// the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status API listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
