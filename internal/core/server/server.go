package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/projpipe/internal/core/config"
	"github.com/mohammed-shakir/projpipe/internal/core/health"
	middleware "github.com/mohammed-shakir/projpipe/internal/core/middleware"
	"github.com/mohammed-shakir/projpipe/internal/core/router"
)

// Deps are the handlers' collaborators. Metrics is mounted on the main
// router when non-nil.
type Deps struct {
	Transformer router.Transformer
	Ready       health.ReadinessReporter
	Checks      []health.Check
	Metrics     http.Handler
	MetricsPath string
}

// NewRouter builds the HTTP routes.
func NewRouter(cfg config.Config, logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	if d.Ready != nil || len(d.Checks) > 0 {
		r.Get("/readyz", health.Readiness(d.Ready, d.Checks...))
	}
	if d.Metrics != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, d.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		r.Post("/transform", router.HandleTransform(logger, cfg, d.Transformer))
		r.Get("/bounds", router.HandleBounds(logger, cfg, d.Transformer))
		r.Get("/operations", router.HandleOperations(logger, cfg, d.Transformer))
	})
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg, logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
