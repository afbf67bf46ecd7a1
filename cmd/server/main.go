package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/eserdar/outreach-sequencer/internal/api"
	"github.com/eserdar/outreach-sequencer/internal/config"
	"github.com/eserdar/outreach-sequencer/internal/engine"
	"github.com/eserdar/outreach-sequencer/internal/queue"
	"github.com/eserdar/outreach-sequencer/internal/store"
	ws "github.com/eserdar/outreach-sequencer/internal/websocket"
	"github.com/eserdar/outreach-sequencer/internal/worker"
	"github.com/eserdar/outreach-sequencer/migrations"
)

func main() {
	// Load .env file if present (development convenience)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize PostgreSQL
	ctx := context.Background()
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, migrations.Files); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis and the delay queue
	redisClient, err := store.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	delayQueue := queue.New(redisClient, logger)

	// WebSocket hub for live delivery updates
	hub := ws.NewHub(logger)
	go hub.Run()

	// Engine services
	creator := engine.NewCreator(pgStore, delayQueue, logger)
	replies := engine.NewReplies(pgStore, delayQueue, hub, logger)
	reporter := engine.NewStatusReporter(pgStore)

	// In-process executor so a single binary runs the whole system and
	// dashboard clients see send events. cmd/worker adds capacity.
	sender := worker.NewSimulatedSender(cfg.SendSuccessRate, 100*time.Millisecond, logger)
	limiter := worker.NewRateLimiter(redisClient, cfg.SendRatePerSec, logger)
	executor := worker.NewExecutor(pgStore, delayQueue, sender, limiter, hub, cfg.NumWorkers, worker.Options{
		PollInterval: cfg.PollInterval,
		ClaimBatch:   cfg.ClaimBatch,
		MaxAttempts:  cfg.SendMaxAttempts,
	}, logger)

	executorCtx, stopExecutor := context.WithCancel(ctx)
	executorDone := make(chan struct{})
	go func() {
		defer close(executorDone)
		executor.Start(executorCtx)
	}()

	// Setup router
	router := api.NewRouter(pgStore, creator, replies, reporter, delayQueue, hub)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	stopExecutor()
	<-executorDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
