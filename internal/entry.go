// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/marginalia/internal/annotations"
	"github.com/starford/marginalia/internal/api"
	"github.com/starford/marginalia/internal/graph"
	"github.com/starford/marginalia/internal/sse"
	"github.com/starford/marginalia/internal/storage"
	"github.com/starford/marginalia/internal/workspace"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := NewLogger(cfg.App.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("version", app.version),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_backend", cfg.Storage.Backend),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("library_path", cfg.Library.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure library directory exists.
	if err := os.MkdirAll(cfg.Library.Path, 0o755); err != nil {
		return fmt.Errorf("create library dir: %w", err)
	}

	// Initialize storage.
	backend, closeBackend, err := OpenBackend(cfg.Storage)
	if err != nil {
		return err
	}
	defer func() { _ = closeBackend() }()

	// Initialize search index.
	idx, err := OpenIndex(cfg.Search)
	if err != nil {
		return err
	}
	defer idx.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	sess := NewSession(cfg, backend, logger,
		workspace.WithOpener(broker.PublishOpenDocument),
		workspace.WithSearchIndex(idx),
	)
	sess.OnAnnotationsChanged(func(c annotations.Change) {
		broker.PublishAnnotationEvent(string(c.Kind), c.Path, c.ID)
	})
	sess.OnGraphUpdated(func(g *graph.Graph) {
		broker.PublishGraphUpdated(g.DocPath, len(g.Nodes), len(g.Edges))
	})

	apiRouter := api.NewRouter(sess, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, cfg.Library.Path)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	live := []byte(fmt.Sprintf(`{"status":"ok","version":%q}`, app.version))
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(live)
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if sess.Degraded() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(ctx)

	// Reload the session when another process writes the storage files.
	if target, ok := storage.TargetFor(backend); ok && cfg.Storage.Watch {
		g.Go(func() error {
			err := storage.Watch(gCtx, target, logger, func() {
				if sess.Reload() {
					logger.Info("storage changed externally, session reloaded")
				}
			})
			if err != nil {
				logger.Warn("storage watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
