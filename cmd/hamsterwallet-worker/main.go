package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/SilentInt/HamsterWallet/internal/config"
	"github.com/SilentInt/HamsterWallet/internal/events"
	applog "github.com/SilentInt/HamsterWallet/internal/log"
	"github.com/SilentInt/HamsterWallet/internal/storage"
	"github.com/SilentInt/HamsterWallet/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.FromEnv())
	applog.SetDefault(logger)

	logger.Info("Starting hamsterwallet-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	consumer, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventsWorker := worker.NewEventsWorker(repo)

	if err := eventsWorker.StartupCheck(ctx); err != nil {
		logger.Error("Failed startup check", "error", err)
		// Don't exit - continue with normal operation
	}

	go func() {
		if err := consumer.ConsumeTaskEvents(ctx, eventsWorker.HandleTaskEvent); err != nil {
			if err != context.Canceled {
				logger.Error("Event consumption failed", "error", err)
			}
			cancel()
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	// Give the consumer a moment to ack in-flight deliveries
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
