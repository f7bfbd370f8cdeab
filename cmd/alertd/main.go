// Command alertd runs the alert monitoring server.
//
// # Usage
//
//	alertd --database postgres://localhost/alertd --port 8080
//
// # Configuration
//
// The server can be configured via:
// - Command-line flags
// - Environment variables (ALERTD_*)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alertmon/alertd/db/migrate"
	"github.com/alertmon/alertd/internal/api"
	"github.com/alertmon/alertd/internal/cache"
	"github.com/alertmon/alertd/internal/config"
	"github.com/alertmon/alertd/internal/engine"
	"github.com/alertmon/alertd/internal/metrics"
	"github.com/alertmon/alertd/internal/ratelimit"
	"github.com/alertmon/alertd/internal/store"
)

func main() {
	var (
		port          = flag.Int("port", 8080, "HTTP server port")
		dbURL         = flag.String("database", "", "Database URL (postgres://...)")
		redisURL      = flag.String("redis", "", "Redis URL for response caching (optional)")
		rulesPath     = flag.String("rules", "", "Severity/status rules YAML file (optional)")
		customerViews = flag.Bool("customer-views", false, "Enable per-customer tenancy scoping")
		debug         = flag.Bool("debug", false, "Enable debug logging")
		version       = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println("alertd v0.1.0")
		os.Exit(0)
	}

	// Set up logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	// Get database URL from env if not provided
	if *dbURL == "" {
		*dbURL = os.Getenv("ALERTD_DATABASE_URL")
	}
	if *dbURL == "" {
		*dbURL = "postgres://localhost:5432/alertd?sslmode=disable"
	}
	if *redisURL == "" {
		*redisURL = os.Getenv("ALERTD_REDIS_URL")
	}

	cfg := config.Default()
	cfg.CustomerViews = *customerViews
	if *rulesPath != "" {
		rules, err := config.LoadRuleset(*rulesPath)
		if err != nil {
			logger.Error("failed to load rules", "path", *rulesPath, "error", err)
			os.Exit(1)
		}
		cfg.Rules = rules
		logger.Info("loaded severity/status rules", "path", *rulesPath)
	}

	// Connect to database
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := store.NewFromURL(ctx, *dbURL, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	if err := migrate.Run(ctx, db.Pool(), logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// Create engine and API
	eng := engine.New(db, cfg, logger)
	eng.SetRateLimiter(ratelimit.New(cfg.ReceiveRate, cfg.ReceiveBurst))

	appMetrics := metrics.New()
	eng.SetMetrics(appMetrics)

	apiServer := api.NewServer(eng, cfg, logger)
	apiServer.SetCollector(metrics.NewCollector(db))

	if *redisURL != "" {
		responseCache, err := cache.New(*redisURL, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		apiServer.SetCache(responseCache)
		logger.Info("response cache enabled")
	}

	apiServer.Mux().Handle("GET /metrics", appMetrics.Handler())

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      apiServer,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("starting server", "port", *port)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
