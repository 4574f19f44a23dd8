package billing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/smartlink-billing/internal/config"
	"github.com/magabrotheeeer/smartlink-billing/internal/http/handlers/commission/replay"
	"github.com/magabrotheeeer/smartlink-billing/internal/http/handlers/commission/retry"
	"github.com/magabrotheeeer/smartlink-billing/internal/http/handlers/commission/status"
	"github.com/magabrotheeeer/smartlink-billing/internal/http/handlers/health"
	"github.com/magabrotheeeer/smartlink-billing/internal/http/handlers/payment/webhook"
	"github.com/magabrotheeeer/smartlink-billing/internal/http/handlers/profile/upsert"
	"github.com/magabrotheeeer/smartlink-billing/internal/http/handlers/subscription/initialize"
	"github.com/magabrotheeeer/smartlink-billing/internal/http/handlers/subscription/verify"
	"github.com/magabrotheeeer/smartlink-billing/internal/http/middlewarectx"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(
	r chi.Router,
	logger *slog.Logger,
	cfg *config.Config,
	s Services,
	checks map[string]health.Pinger,
	gatherer prometheus.Gatherer,
) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	open := cfg.Env == config.EnvLocal
	sec := cfg.Security

	r.Route("/api/v1", func(r chi.Router) {
		// Провайдер подписывает тело, bearer не нужен
		r.Post("/payments/webhook", webhook.New(logger, s.Verifier, s.Router, cfg.Provider.SignatureHeader).ServeHTTP)

		// Возврат пользователя из формы оплаты
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger, rate.NewLimiter(rate.Limit(sec.RateLimit), sec.RateBurst)))
			r.Get("/subscriptions/verify", verify.New(logger, s.Subscription, cfg.Subscription.DashboardURL).ServeHTTP)
		})

		// Вызовы от сервиса авторизации
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.BearerSecret(logger, sec.ServiceSecret, open))
			r.Post("/subscriptions/initialize", initialize.New(logger, s.Subscription).ServeHTTP)
			r.Post("/profiles", upsert.New(logger, s.Profile).ServeHTTP)
		})

		// Планировщик
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.BearerSecret(logger, sec.CronSecret, open))
			h := retry.New(logger, s.Commission, cfg.Sweep.StalePendingAfter)
			r.Get("/commissions/retry", h.ServeHTTP)
			r.Post("/commissions/retry", h.ServeHTTP)
		})

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.BearerSecret(logger, sec.AdminSecret, open))
			r.Get("/admin/commissions/{userID}", status.New(logger, s.Commission).ServeHTTP)
			r.Post("/admin/commissions/{userID}/{reference}/replay", replay.New(logger, s.Commission).ServeHTTP)
		})
	})

	r.Get("/health", health.New(logger, checks).ServeHTTP)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/docs/*", httpSwagger.WrapHandler)
}

// NewRouter собирает chi-роутер.
func NewRouter(logger *slog.Logger, cfg *config.Config, s Services, checks map[string]health.Pinger, gatherer prometheus.Gatherer) http.Handler {
	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, s, checks, gatherer)
	return router
}
