package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pixelclass/render-judge/internal/api"
	"github.com/pixelclass/render-judge/internal/broadcast"
	"github.com/pixelclass/render-judge/internal/channel"
	"github.com/pixelclass/render-judge/internal/cleanup"
	"github.com/pixelclass/render-judge/internal/config"
	"github.com/pixelclass/render-judge/internal/diff"
	"github.com/pixelclass/render-judge/internal/game"
	"github.com/pixelclass/render-judge/internal/levels"
	"github.com/pixelclass/render-judge/internal/notify"
	"github.com/pixelclass/render-judge/internal/runtime"
	"github.com/pixelclass/render-judge/internal/sandbox"
	"github.com/pixelclass/render-judge/internal/scoring"
	"github.com/pixelclass/render-judge/internal/storage"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting render-judge",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Ensure database exists and run migrations
	if err := storage.EnsureDatabase(cfg.Database.AdminDSN, cfg.Database.DatabaseName); err != nil {
		slog.Error("failed to bootstrap database", "error", err)
		os.Exit(1)
	}

	slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
	if err := storage.MigrateFromDSN(initCtx, cfg.Database.DSN, cfg.Database.MigrationsDir); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize database repository
	repo, err := storage.NewPostgresRepository(initCtx, storage.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: int32(cfg.Database.MaxOpenConns),
		MaxIdleConns: int32(cfg.Database.MaxIdleConns),
	})
	if err != nil {
		slog.Error("failed to create database repository", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected successfully")

	// Initialize score notifier
	notifier, err := notify.NewRedisNotifier(
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.ScoreChannel,
		cfg.Redis.TotalsKey,
	)
	if err != nil {
		slog.Error("failed to create score notifier", "error", err)
		os.Exit(1)
	}

	// Load level catalog
	catalog := levels.NewLoader()
	if err := catalog.LoadFromDir(cfg.Levels.Dir); err != nil {
		slog.Warn("failed to load levels from dir", "dir", cfg.Levels.Dir, "error", err)
	}

	// Create context with cancellation for background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Channel activity metrics
	reporter := channel.NewActivityReporter(cfg.Metrics.ReportInterval)
	reporter.Start(ctx)

	// Renderer runtime (optional: contexts may attach externally)
	var rt *runtime.Manager
	var controllerRuntime sandbox.Runtime
	if cfg.Runtime.Enabled {
		rt, err = runtime.NewManager(cfg.Runtime)
		if err != nil {
			slog.Error("failed to create renderer runtime", "error", err)
			os.Exit(1)
		}
		controllerRuntime = rt
	}

	// Core pipeline
	controller := sandbox.NewController(controllerRuntime, reporter)

	engine := diff.NewEngine(cfg.Scoring.DiffWorkers)
	engine.Start(ctx)

	broadcaster := broadcast.NewBroadcaster()
	aggregator := scoring.NewAggregator(catalog, notifier, repo)

	g := game.New(catalog, controller, engine, cfg.Scoring.Debounce, aggregator, broadcaster, repo)
	g.Restore(initCtx)

	// Cleanup worker for orphaned renderer containers
	if rt != nil {
		cleaner := cleanup.NewCleaner(rt, controller, cfg.Cleanup.Interval, cfg.Cleanup.MaxRendererAge)
		cleaner.Start(ctx)
	}

	// Setup HTTP server
	server := api.NewServer(cfg.Server, g, catalog, broadcaster, repo)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Tear down channels and their renderer containers
	controller.Close(shutdownCtx)

	if rt != nil {
		if err := rt.Close(); err != nil {
			slog.Error("runtime close error", "error", err)
		}
	}

	if err := notifier.Close(); err != nil {
		slog.Error("notifier close error", "error", err)
	}

	if err := repo.Close(); err != nil {
		slog.Error("repository close error", "error", err)
	}

	slog.Info("render-judge stopped")
}
