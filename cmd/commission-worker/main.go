package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/smartlink-billing/internal/app/commissionworker"
	"github.com/magabrotheeeer/smartlink-billing/internal/config"
	"github.com/magabrotheeeer/smartlink-billing/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := sl.SetupLogger(cfg.Env)
	logger.Info("starting commission worker", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := commissionworker.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize commission worker", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("commission worker stopped with error", sl.Err(err))
		os.Exit(1)
	}
}
