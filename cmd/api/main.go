package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fieldpulse/liveactivity/internal/app"
	"github.com/fieldpulse/liveactivity/internal/config"
	"github.com/fieldpulse/liveactivity/internal/platform/logging"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.NewJSON(cfg.LogLevel)
	logging.SetDefault(logger)
	defer func() {
		_ = logger.Sync()
	}()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("build app", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		logger.Error("service failed", "error", err)
		os.Exit(1)
	}
}
