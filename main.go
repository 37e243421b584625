package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"contentops/backend/internal/app"
	"contentops/backend/internal/config"
	"contentops/backend/internal/logger"
)

func main() {
	// Initialize structured logger
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("app exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()
	logger.Info("migrations applied successfully")

	application, err := app.New(cfg, deps.DB, deps.NSQProducer, logger)
	if err != nil {
		return err
	}

	if cfg.EnableDispatcher {
		consumer, err := application.StartResultConsumer()
		if err != nil {
			return err
		}
		defer consumer.Stop()
	}

	return application.Run(ctx)
}
