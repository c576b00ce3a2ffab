package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/yuju-k/happy-wave/internal/config"
	"github.com/yuju-k/happy-wave/internal/dedup"
	"github.com/yuju-k/happy-wave/internal/dispatch"
	"github.com/yuju-k/happy-wave/internal/event"
	"github.com/yuju-k/happy-wave/internal/google"
	"github.com/yuju-k/happy-wave/internal/handlers"
	"github.com/yuju-k/happy-wave/internal/logging"
	"github.com/yuju-k/happy-wave/internal/repository"
)

func setupLogging(cfg *config.NotificationService) (io.Closer, error) {
	if cfg.LogDir == "" {
		logging.Setup(os.Stdout, cfg.LogLevel)
		return io.NopCloser(nil), nil
	}

	file, err := logging.OpenDailyFile(cfg.LogDir, time.Now())
	if err != nil {
		return nil, err
	}
	logging.Setup(io.MultiWriter(os.Stdout, file), cfg.LogLevel)
	slog.Info("Logging to file", "path", file.Name())
	return file, nil
}

func main() {
	cfg := config.New()

	logFile, err := setupLogging(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	firebaseService, err := google.NewFirebaseService(ctx, &google.FirebaseConfig{
		CredentialsPath: cfg.GoogleConfig.FirebaseCredentials,
		ProjectID:       cfg.GoogleConfig.FirebaseProjectID,
	})
	if err != nil {
		fatal("Failed to initialize Firebase", err)
	}

	fsClient, err := firebaseService.Firestore(ctx)
	if err != nil {
		fatal("Failed to initialize Firestore", err)
	}
	defer fsClient.Close()

	var dd dispatch.Deduplicator
	if cfg.RedisCfg.Enabled {
		client, err := dedup.NewRedisClient(cfg.RedisCfg.Host, cfg.RedisCfg.Port, cfg.RedisCfg.Password, cfg.RedisCfg.DB)
		if err != nil {
			fatal("Failed to connect to Redis", err)
		}
		deduplicator := dedup.NewRedisDeduplicator(client, cfg.DispatchCfg.DedupTTL)
		defer deduplicator.Close()
		dd = deduplicator
		slog.Info("Duplicate suppression enabled", "ttl", cfg.DispatchCfg.DedupTTL)
	}

	dispatcher := dispatch.NewDispatcher(repository.NewFirestoreRepository(fsClient), firebaseService, dd)

	if cfg.RabbitMQCfg.Enabled {
		consumerConfig := &event.ConsumerConfig{
			RabbitMQURL: fmt.Sprintf("amqp://%s:%s@%s:%s/",
				cfg.RabbitMQCfg.Username,
				cfg.RabbitMQCfg.Password,
				cfg.RabbitMQCfg.Host,
				cfg.RabbitMQCfg.Port),
			QueueName:       cfg.RabbitMQCfg.QueueName,
			DeadLetterQueue: cfg.RabbitMQCfg.DeadLetterQueue,
			PrefetchCount:   cfg.RabbitMQCfg.PrefetchCount,
			Timeout:         cfg.DispatchCfg.Timeout,
		}

		consumer, err := event.NewQueueConsumer(consumerConfig, dispatcher)
		if err != nil {
			fatal("Failed to setup queue consumer", err)
		}
		defer consumer.Close()

		go func() {
			if err := consumer.StartConsuming(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Consumer error", "error", err)
				stop()
			}
		}()
	}

	app := fiber.New()
	app.Get("/checkhealth", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).SendString("Notification service is healthy")
	})
	handlers.NewChatMessageHandler(dispatcher, cfg.DispatchCfg.Timeout).Register(app)

	go func() {
		slog.Info("Starting server", "port", cfg.Port)
		if err := app.Listen(fmt.Sprintf("0.0.0.0:%s", cfg.Port)); err != nil {
			slog.Error("Error starting server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
