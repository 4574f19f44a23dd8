// Package sweeper фоновый процесс, который по таймерам повторяет неудачные
// уведомления о комиссиях и деактивирует просроченные подписки.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/smartlink-billing/internal/app/billing"
	"github.com/magabrotheeeer/smartlink-billing/internal/cache"
	"github.com/magabrotheeeer/smartlink-billing/internal/config"
	"github.com/magabrotheeeer/smartlink-billing/internal/lib/sl"
	"github.com/magabrotheeeer/smartlink-billing/internal/services/commission"
	"github.com/magabrotheeeer/smartlink-billing/internal/services/subscription"
	"github.com/magabrotheeeer/smartlink-billing/internal/storage/repository"
)

// RetryService повторная рассылка комиссий.
type RetryService interface {
	RetryFailed(ctx context.Context, opts commission.SweepOptions) (int, error)
}

// ExpiryService деактивация просроченных подписок.
type ExpiryService interface {
	ExpireOverdue(ctx context.Context) (int64, error)
}

// App процесс с двумя таймерами.
type App struct {
	retry  RetryService
	expiry ExpiryService
	cfg    config.Sweep
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
}

func waitForDB(db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(db)
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New подключает хранилище и redis и собирает сервисы.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err := waitForDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	var redis *cache.Cache
	if cfg.AddressRedis != "" {
		redis, err = cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("cache not initialized: %w", err)
		}
	} else {
		logger.Warn("redis address is empty, sweep runs without a global lock")
	}

	services := billing.NewServices(logger, cfg, db, redis, nil, nil, func(*commission.Service) subscription.Dispatcher {
		return nil
	})

	a := NewWithServices(logger, cfg.Sweep, services.Commission, services.Subscription)
	a.db, a.cache = db, redis
	return a, nil
}

// NewWithServices собирает процесс поверх готовых сервисов.
func NewWithServices(logger *slog.Logger, cfg config.Sweep, retry RetryService, expiry ExpiryService) *App {
	return &App{retry: retry, expiry: expiry, cfg: cfg, logger: logger}
}

// Run крутит таймеры до отмены ctx. Первый проход выполняется сразу.
func (a *App) Run(ctx context.Context) error {
	retryTicker := time.NewTicker(a.cfg.Interval)
	defer retryTicker.Stop()
	expiryTicker := time.NewTicker(a.cfg.ExpiryInterval)
	defer expiryTicker.Stop()

	a.expire(ctx)
	a.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("shutting down retry sweeper")
			a.close()
			return nil
		case <-retryTicker.C:
			a.sweep(ctx)
		case <-expiryTicker.C:
			a.expire(ctx)
		}
	}
}

func (a *App) sweep(ctx context.Context) {
	const op = "sweeper.sweep"
	log := a.logger.With(slog.String("op", op))

	n, err := a.retry.RetryFailed(ctx, commission.SweepOptions{Limit: a.cfg.Limit, StaleAfter: a.cfg.StalePendingAfter})
	switch {
	case errors.Is(err, commission.ErrSweepInProgress):
		log.Info("another sweep is running, skipping")
	case errors.Is(err, context.Canceled):
	case err != nil:
		log.Error("retry sweep failed", sl.Err(err))
	default:
		log.Info("retry sweep done", slog.Int("recovered", n))
	}
}

func (a *App) expire(ctx context.Context) {
	const op = "sweeper.expire"
	if _, err := a.expiry.ExpireOverdue(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("failed to expire subscriptions", slog.String("op", op), sl.Err(err))
	}
}

func (a *App) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close database", sl.Err(err))
		}
	}
}
