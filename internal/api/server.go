// Package api serves stored runs over HTTP: listings, manifests and
// rendered reports backed by the run repository.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"edgestat/internal"
	"edgestat/ports"
)

// Config holds server configuration.
type Config struct {
	Addr string
	// TopEdges bounds the strongest-edges tables in report responses.
	TopEdges int
	// ShutdownGrace is how long in-flight requests get after the serve
	// context is cancelled.
	ShutdownGrace time.Duration
}

// App is the results API application.
type App struct {
	router *chi.Mux
	config Config
	logger *internal.Logger
}

// NewApp wires the router and handlers around a run repository.
func NewApp(config Config, repo ports.RunRepository) *App {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = 10 * time.Second
	}

	app := &App{
		router: chi.NewRouter(),
		config: config,
		logger: internal.NewDefaultLogger(),
	}
	app.setupMiddleware()
	app.setupRoutes(newRunHandler(repo, config.TopEdges))
	return app
}

func (a *App) setupMiddleware() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.RealIP)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
}

func (a *App) setupRoutes(runs *runHandler) {
	a.router.Get("/healthz", a.handleHealth)

	a.router.Get("/api/runs", runs.handleList)
	a.router.Get("/api/runs/{id}", runs.handleGet)
	a.router.Get("/api/runs/{id}/report", runs.handleReport)
}

// Handler exposes the router, for tests and embedding.
func (a *App) Handler() http.Handler { return a.router }

// Run serves until the context is cancelled, then drains in-flight
// requests before returning.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{Addr: a.config.Addr, Handler: a.router}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("results API listening on %s", a.config.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
