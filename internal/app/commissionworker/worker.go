// Package commissionworker читает задачи по комиссиям из RabbitMQ
// и отправляет уведомления партнёрскому сервису.
package commissionworker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/smartlink-billing/internal/app/billing"
	"github.com/magabrotheeeer/smartlink-billing/internal/cache"
	"github.com/magabrotheeeer/smartlink-billing/internal/config"
	"github.com/magabrotheeeer/smartlink-billing/internal/lib/sl"
	"github.com/magabrotheeeer/smartlink-billing/internal/rabbitmq"
	"github.com/magabrotheeeer/smartlink-billing/internal/services/commission"
	"github.com/magabrotheeeer/smartlink-billing/internal/services/subscription"
	"github.com/magabrotheeeer/smartlink-billing/internal/storage/repository"
)

// ErrBrokerNotConfigured в конфиге нет адреса RabbitMQ.
var ErrBrokerNotConfigured = errors.New("rabbitmq url is empty")

// App процесс-потребитель очереди комиссий.
type App struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	queue   string
	service *commission.Service
	db      *repository.Storage
	cache   *cache.Cache
	logger  *slog.Logger
}

// New подключает брокер, хранилище и redis.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg.RabbitMQ.URL == "" {
		return nil, ErrBrokerNotConfigured
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}

	a := &App{db: db, queue: cfg.RabbitMQ.Queue, logger: logger}

	if cfg.AddressRedis != "" {
		a.cache, err = cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			a.close()
			return nil, err
		}
	}

	a.conn, a.ch, err = rabbitmq.Open(cfg.RabbitMQ)
	if err != nil {
		a.close()
		return nil, err
	}

	services := billing.NewServices(logger, cfg, db, a.cache, nil, nil, func(*commission.Service) subscription.Dispatcher {
		return nil
	})
	a.service = services.Commission
	return a, nil
}

// Run потребляет очередь до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	if err := rabbitmq.ConsumerMessage(ctx, a.logger, a.ch, a.queue, a.service.HandleMessage); err != nil {
		a.logger.Error("failed to start commission consumer", sl.Err(err))
		a.close()
		return err
	}
	a.logger.Info("commission worker started", slog.String("queue", a.queue))

	<-ctx.Done()
	a.logger.Info("commission worker shutting down gracefully")
	a.close()
	return nil
}

func (a *App) close() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
}
