package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/eserdar/outreach-sequencer/internal/config"
	"github.com/eserdar/outreach-sequencer/internal/queue"
	"github.com/eserdar/outreach-sequencer/internal/store"
	"github.com/eserdar/outreach-sequencer/internal/worker"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	redisClient, err := store.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	delayQueue := queue.New(redisClient, logger)

	sender := worker.NewSimulatedSender(cfg.SendSuccessRate, 100*time.Millisecond, logger)
	limiter := worker.NewRateLimiter(redisClient, cfg.SendRatePerSec, logger)

	// No hub here: dashboard clients connect to the API server, whose
	// in-process executor feeds them. This binary only adds send capacity;
	// claiming is at-most-once so concurrent executors are safe.
	executor := worker.NewExecutor(pgStore, delayQueue, sender, limiter, nil, cfg.NumWorkers, worker.Options{
		PollInterval: cfg.PollInterval,
		ClaimBatch:   cfg.ClaimBatch,
		MaxAttempts:  cfg.SendMaxAttempts,
	}, logger)

	executor.Start(ctx)
	logger.Info("worker stopped")
}
