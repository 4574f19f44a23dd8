package billing

import (
	"log/slog"

	"github.com/magabrotheeeer/smartlink-billing/internal/affiliate"
	"github.com/magabrotheeeer/smartlink-billing/internal/cache"
	"github.com/magabrotheeeer/smartlink-billing/internal/config"
	"github.com/magabrotheeeer/smartlink-billing/internal/lib/signature"
	"github.com/magabrotheeeer/smartlink-billing/internal/metrics"
	"github.com/magabrotheeeer/smartlink-billing/internal/services/commission"
	"github.com/magabrotheeeer/smartlink-billing/internal/services/events"
	"github.com/magabrotheeeer/smartlink-billing/internal/services/profile"
	"github.com/magabrotheeeer/smartlink-billing/internal/services/subscription"
)

// Store хранилище, которое нужно всем сервисам биллинга.
type Store interface {
	subscription.Repository
	commission.Repository
	profile.Repository
}

// Services собранные сервисы, которые использует HTTP-слой.
type Services struct {
	Router       *events.Router
	Subscription *subscription.Service
	Commission   *commission.Service
	Profile      *profile.Service
	Verifier     *signature.Verifier
}

// DispatcherFunc выбирает способ доставки задач по комиссиям.
type DispatcherFunc func(svc *commission.Service) subscription.Dispatcher

// NewServices собирает сервисы поверх общих зависимостей. redis и provider могут быть nil.
func NewServices(
	log *slog.Logger,
	cfg *config.Config,
	store Store,
	redis *cache.Cache,
	provider subscription.Provider,
	m *metrics.Metrics,
	dispatcher DispatcherFunc,
) Services {
	var (
		locker    commission.Locker
		subsCache subscription.Cache
	)
	if redis != nil {
		locker = redis
		subsCache = redis
	}

	affiliateClient := affiliate.New(cfg.Affiliate)
	commissionService := commission.New(
		log, store, affiliateClient, locker, m,
		cfg.Affiliate, cfg.Subscription.Plans, cfg.Sweep.LockTTL,
	)
	var jobs subscription.Dispatcher
	if next := dispatcher(commissionService); next != nil {
		jobs = commission.NewDeferringDispatcher(next, commissionService)
	}
	subscriptionService := subscription.New(
		log, store, provider, subsCache, jobs, m,
		cfg.Subscription, cfg.Provider.VerifyCacheTTL,
	)

	return Services{
		Router:       events.NewRouter(log, subscriptionService, affiliateClient, m),
		Subscription: subscriptionService,
		Commission:   commissionService,
		Profile:      profile.New(log, store),
		Verifier:     signature.New(cfg.Provider.SigningSecret()),
	}
}
