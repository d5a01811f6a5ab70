package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/deusflow/mnadigest/internal/app"
	"github.com/deusflow/mnadigest/internal/config"
	"github.com/deusflow/mnadigest/internal/logger"
)

func main() {
	// A missing .env is fine; CI injects the variables directly.
	_ = godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Init(logger.Options{
		Debug:      cfg.Debug,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		logger.Error("run failed", "error", err)
		stop()
		os.Exit(1)
	}
}
