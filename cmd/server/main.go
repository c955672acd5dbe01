package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docdepot/docdepot/pkg/docdepot/api"
	"github.com/docdepot/docdepot/pkg/docdepot/config"
)

// bootstrapConfig is the small slice of environment needed before the
// full configuration can be loaded.
type bootstrapConfig struct {
	ConfigFile string `env:"DOCDEPOT_CONFIG_FILE" env-default:""`
	LogFormat  string `env:"DOCDEPOT_LOG_FORMAT" env-default:"text"`
	LogLevel   string `env:"DOCDEPOT_LOG_LEVEL" env-default:"info"`
}

func main() {
	var bootstrap bootstrapConfig
	if err := cleanenv.ReadEnv(&bootstrap); err != nil {
		fmt.Fprintf(os.Stderr, "read environment: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(bootstrap)
	slog.SetDefault(logger)

	if err := run(bootstrap, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(bootstrap bootstrapConfig, logger *slog.Logger) error {
	options := []config.Option{}
	if bootstrap.ConfigFile != "" {
		options = append(options, config.WithFile(bootstrap.ConfigFile))
	}
	options = append(options, config.WithEnv("DOCDEPOT_"))

	cfg, err := config.Load(options...)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	svc, cleanup, err := cfg.BuildService(context.Background(), logger)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	defer cleanup()

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.RequestLogger(logger))
	r.Use(api.MetricsMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS for development
	if cfg.Environment == "development" {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

				if r.Method == "OPTIONS" {
					w.WriteHeader(http.StatusOK)
					return
				}

				next.ServeHTTP(w, r)
			})
		})
	}

	// Health check
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status": "healthy", "environment": %q, "default_storage": %q}`,
			cfg.Environment, cfg.DefaultStorageBackend)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// API routes
	documentsHandler := api.NewDocumentsHandler(svc, logger)
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/documents", documentsHandler.Routes())
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("document depot starting",
			"addr", httpServer.Addr,
			"environment", cfg.Environment,
			"database", cfg.DatabaseType,
			"default_storage", cfg.DefaultStorageBackend,
			"storage_backends", len(cfg.StorageBackends))

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exiting")
	return nil
}

func newLogger(bootstrap bootstrapConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(bootstrap.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.ToLower(bootstrap.LogFormat) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
