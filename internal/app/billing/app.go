// Package billing собирает HTTP-сервис биллинга: хранилище, кеш,
// клиентов провайдера и партнёрского сервиса, доставку задач по комиссиям
// и маршруты.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/smartlink-billing/internal/cache"
	"github.com/magabrotheeeer/smartlink-billing/internal/config"
	"github.com/magabrotheeeer/smartlink-billing/internal/http/handlers/health"
	"github.com/magabrotheeeer/smartlink-billing/internal/lib/sl"
	"github.com/magabrotheeeer/smartlink-billing/internal/lib/workerpool"
	"github.com/magabrotheeeer/smartlink-billing/internal/metrics"
	"github.com/magabrotheeeer/smartlink-billing/internal/migrations"
	"github.com/magabrotheeeer/smartlink-billing/internal/paymentprovider"
	"github.com/magabrotheeeer/smartlink-billing/internal/rabbitmq"
	"github.com/magabrotheeeer/smartlink-billing/internal/services/commission"
	"github.com/magabrotheeeer/smartlink-billing/internal/services/subscription"
	"github.com/magabrotheeeer/smartlink-billing/internal/storage/repository"
)

// App HTTP-сервис биллинга.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	pool   *workerpool.Pool
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New подключает зависимости и собирает сервер. Redis и RabbitMQ
// необязательны: без них блокировки отключаются, а задачи выполняются в пуле.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &App{logger: logger, db: db}
	checks := map[string]health.Pinger{"postgres": db}

	if cfg.AddressRedis != "" {
		a.cache, err = cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			a.close()
			return nil, err
		}
		checks["redis"] = a.cache
	} else {
		logger.Warn("redis address is empty, cache and locks disabled")
	}

	var provider subscription.Provider
	providerClient, err := paymentprovider.NewClient(cfg.Provider)
	if err != nil {
		logger.Warn("payment provider client disabled", sl.Err(err))
	} else {
		provider = providerClient
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	dispatcher, err := a.dispatcher(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	services := NewServices(logger, cfg, db, a.cache, provider, m, dispatcher)

	a.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      NewRouter(logger, cfg, services, checks, reg),
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return a, nil
}

// dispatcher публикует задачи в RabbitMQ, если задан URL, иначе запускает пул.
func (a *App) dispatcher(ctx context.Context, cfg *config.Config) (DispatcherFunc, error) {
	if cfg.RabbitMQ.URL != "" {
		conn, ch, err := rabbitmq.Open(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
		}
		a.conn, a.ch = conn, ch
		a.logger.Info("commission jobs go to RabbitMQ", slog.String("queue", cfg.RabbitMQ.Queue))
		return func(*commission.Service) subscription.Dispatcher {
			return rabbitmq.NewDispatcher(ch, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
		}, nil
	}

	a.pool = workerpool.New(cfg.Workers.Size, cfg.Workers.QueueSize, cfg.Workers.TaskTimeout, a.logger)
	a.pool.Start(context.WithoutCancel(ctx))
	a.logger.Info("commission jobs run in process", slog.Int("workers", cfg.Workers.Size))
	return func(svc *commission.Service) subscription.Dispatcher {
		return commission.NewPoolDispatcher(a.pool, svc, a.logger)
	}, nil
}

// Run обслуживает запросы до отмены ctx, затем останавливается мягко.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.pool != nil {
		a.pool.Stop()
	}
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
