package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/smartlink-billing/internal/app/sweeper"
	"github.com/magabrotheeeer/smartlink-billing/internal/config"
	"github.com/magabrotheeeer/smartlink-billing/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := sl.SetupLogger(cfg.Env)
	logger.Info("starting retry sweeper",
		slog.String("env", cfg.Env),
		slog.Duration("interval", cfg.Sweep.Interval),
		slog.Duration("expiry_interval", cfg.Sweep.ExpiryInterval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := sweeper.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize retry sweeper", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("retry sweeper stopped with error", sl.Err(err))
		os.Exit(1)
	}
}
