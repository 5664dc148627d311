package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/SilentInt/HamsterWallet/internal/classifier/openai"
	"github.com/SilentInt/HamsterWallet/internal/config"
	"github.com/SilentInt/HamsterWallet/internal/events"
	apphttp "github.com/SilentInt/HamsterWallet/internal/http"
	applog "github.com/SilentInt/HamsterWallet/internal/log"
	"github.com/SilentInt/HamsterWallet/internal/recat"
	"github.com/SilentInt/HamsterWallet/internal/storage"
	"github.com/SilentInt/HamsterWallet/internal/taxonomy"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.FromEnv())
	applog.SetDefault(logger)

	logger.Info("Starting hamsterwallet")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	taxService := taxonomy.NewService(repo)

	gateway := openai.NewClient(openai.Config{
		BaseURL:     cfg.ClassifierBaseURL,
		APIKey:      cfg.ClassifierAPIKey,
		Model:       cfg.ClassifierModel,
		Temperature: cfg.ClassifierTemperature,
		Timeout:     cfg.ClassifierTimeout,
	})

	// AMQP event publishing is optional; without a URL events stay local.
	var publisher recat.EventPublisher
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP publisher", "error", err)
			os.Exit(1)
		}
		defer amqpPub.Close()
		publisher = amqpPub
		logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	recatService := recat.NewService(
		recat.NewTaskState(),
		repo,
		taxService,
		gateway,
		publisher,
		recat.Config{
			DefaultBatchSize: cfg.BatchSize,
			BatchInterval:    cfg.BatchInterval,
		},
	)

	srv := apphttp.NewServer(":"+cfg.Port, recatService, taxService, repo)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting hamsterwallet server", "port", cfg.Port, "db", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
