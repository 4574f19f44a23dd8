// Package subscription переводит профиль между состояниями подписки
// по событиям провайдера и по проверке транзакции после редиректа.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/smartlink-billing/internal/config"
	"github.com/magabrotheeeer/smartlink-billing/internal/lib/sl"
	"github.com/magabrotheeeer/smartlink-billing/internal/metrics"
	"github.com/magabrotheeeer/smartlink-billing/internal/models"
	"github.com/magabrotheeeer/smartlink-billing/internal/paymentprovider"
	"github.com/magabrotheeeer/smartlink-billing/internal/storage/repository"
)

// Источники активации, попадают в задачу по комиссии и в метрики.
const (
	SourceWebhook      = "webhook"
	SourceVerification = "verification"
)

var (
	// ErrMissingReference в запросе нет reference транзакции.
	ErrMissingReference = errors.New("missing payment reference")
	// ErrPaymentNotSuccessful провайдер не подтвердил оплату.
	ErrPaymentNotSuccessful = errors.New("payment not successful")
	// ErrMissingUserID в метаданных транзакции нет user_id.
	ErrMissingUserID = errors.New("missing user id in payment metadata")
	// ErrProviderUnavailable провайдер не ответил или ответил ошибкой.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrUnknownPlan тарифа нет в каталоге.
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrPlanFull достигнут лимит активных подписчиков тарифа.
	ErrPlanFull = errors.New("plan is full")
)

// Repository хранилище профилей.
type Repository interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	ActivateSubscription(ctx context.Context, userID string, plan models.Plan, paidAt, expiresAt time.Time) (bool, error)
	DeactivateSubscription(ctx context.Context, userID string, at time.Time) (bool, error)
	ExpireSubscriptions(ctx context.Context, at time.Time) (int64, error)
	CountActiveSubscribers(ctx context.Context, plan models.Plan, at time.Time) (int, error)
}

// Provider клиент платёжного провайдера.
type Provider interface {
	VerifyTransaction(ctx context.Context, reference string) (*paymentprovider.Transaction, error)
	InitializeTransaction(ctx context.Context, req paymentprovider.InitializeRequest) (*paymentprovider.InitializeResult, error)
}

// Cache кеш подтверждённых транзакций.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Dispatcher ставит задачу по комиссии в фон. Не должен блокироваться.
type Dispatcher interface {
	Dispatch(job models.CommissionJob) error
}

// Service машина состояний подписки.
type Service struct {
	log        *slog.Logger
	repo       Repository
	provider   Provider
	cache      Cache
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	cfg        config.Subscription
	verifyTTL  time.Duration
	now        func() time.Time
}

// New создаёт сервис. cache, provider и metrics могут быть nil.
func New(
	log *slog.Logger,
	repo Repository,
	provider Provider,
	cache Cache,
	dispatcher Dispatcher,
	m *metrics.Metrics,
	cfg config.Subscription,
	verifyTTL time.Duration,
) *Service {
	if cfg.Period <= 0 {
		cfg.Period = 30 * 24 * time.Hour
	}
	return &Service{
		log:        log,
		repo:       repo,
		provider:   provider,
		cache:      cache,
		dispatcher: dispatcher,
		metrics:    m,
		cfg:        cfg,
		verifyTTL:  verifyTTL,
		now:        time.Now,
	}
}

// ApplyChargeSuccess активирует подписку по событию об успешном платеже.
// Неатрибутируемые события (нет user_id или профиля) подтверждаются без изменений.
func (s *Service) ApplyChargeSuccess(ctx context.Context, data models.EventData) error {
	const op = "subscription.ApplyChargeSuccess"
	log := s.log.With(slog.String("op", op), slog.String("reference", data.Reference))

	userID := strings.TrimSpace(data.Metadata.UserID)
	if userID == "" {
		log.Warn("charge without user_id in metadata, skipping")
		s.metrics.Transition(SourceWebhook, "unattributed")
		return nil
	}
	log = log.With(slog.String("user_id", userID))

	plan := models.ParsePlan(data.Metadata.Plan)
	activated, err := s.activate(ctx, userID, plan)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !activated {
		log.Warn("profile not found, charge left unattributed")
		s.metrics.Transition(SourceWebhook, "unattributed")
		return nil
	}

	log.Info("subscription activated", slog.String("plan", string(plan)))
	s.metrics.Transition(SourceWebhook, "activated")
	s.dispatch(log, models.CommissionJob{UserID: userID, Reference: data.Reference, Plan: plan, Source: SourceWebhook})
	return nil
}

// ApplyChargeFailed снимает активность подписки. Даты оплаты не трогаются.
func (s *Service) ApplyChargeFailed(ctx context.Context, data models.EventData) error {
	const op = "subscription.ApplyChargeFailed"
	log := s.log.With(slog.String("op", op), slog.String("reference", data.Reference))

	userID := strings.TrimSpace(data.Metadata.UserID)
	if userID == "" {
		log.Warn("failed charge without user_id in metadata, skipping")
		return nil
	}

	deactivated, err := s.repo.DeactivateSubscription(ctx, userID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !deactivated {
		log.Warn("profile not found for failed charge", slog.String("user_id", userID))
		return nil
	}

	log.Info("subscription deactivated", slog.String("user_id", userID))
	s.metrics.Transition(SourceWebhook, "deactivated")
	return nil
}

// ActivateFromVerification запрашивает статус транзакции у провайдера и
// активирует подписку так же, как вебхук. Повторный вызов с тем же
// reference безопасен.
func (s *Service) ActivateFromVerification(ctx context.Context, reference string) error {
	const op = "subscription.ActivateFromVerification"
	reference = strings.TrimSpace(reference)
	log := s.log.With(slog.String("op", op), slog.String("reference", reference))

	if reference == "" {
		return fmt.Errorf("%s: %w", op, ErrMissingReference)
	}

	tx, err := s.verify(ctx, reference)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !tx.Successful() {
		log.Info("transaction not successful", slog.String("status", tx.Status))
		return fmt.Errorf("%s: %w", op, ErrPaymentNotSuccessful)
	}

	userID := strings.TrimSpace(tx.Metadata.UserID)
	if userID == "" {
		return fmt.Errorf("%s: %w", op, ErrMissingUserID)
	}

	plan := models.ParsePlan(tx.Metadata.Plan)
	activated, err := s.activate(ctx, userID, plan)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !activated {
		return fmt.Errorf("%s: %w", op, repository.ErrProfileNotFound)
	}

	log.Info("subscription activated", slog.String("user_id", userID), slog.String("plan", string(plan)))
	s.metrics.Transition(SourceVerification, "activated")
	s.dispatch(log, models.CommissionJob{UserID: userID, Reference: reference, Plan: plan, Source: SourceVerification})
	return nil
}

// Initialize создаёт транзакцию у провайдера для выбранного тарифа.
func (s *Service) Initialize(ctx context.Context, userID, planName string) (*paymentprovider.InitializeResult, error) {
	const op = "subscription.Initialize"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID))

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	plan, ok := s.findPlan(planName)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %q", op, ErrUnknownPlan, planName)
	}

	if plan.MaxActive > 0 {
		count, err := s.repo.CountActiveSubscribers(ctx, models.Plan(plan.Name), s.now().UTC())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if count >= plan.MaxActive {
			log.Info("plan is full", slog.String("plan", plan.Name), slog.Int("active", count))
			return nil, fmt.Errorf("%s: %w", op, ErrPlanFull)
		}
	}

	if s.provider == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrProviderUnavailable)
	}
	res, err := s.provider.InitializeTransaction(ctx, paymentprovider.InitializeRequest{
		Email:       profile.Email,
		Amount:      plan.Amount,
		Currency:    s.cfg.Currency,
		CallbackURL: s.cfg.CallbackURL,
		Metadata:    models.EventMetadata{UserID: userID, Plan: plan.Name},
	})
	if err != nil {
		log.Error("failed to initialize transaction", sl.Err(err))
		return nil, fmt.Errorf("%s: %w: %v", op, ErrProviderUnavailable, err)
	}

	log.Info("transaction initialized", slog.String("reference", res.Reference), slog.String("plan", plan.Name))
	return res, nil
}

// ExpireOverdue деактивирует подписки с истёкшим сроком.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	const op = "subscription.ExpireOverdue"
	n, err := s.repo.ExpireSubscriptions(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if n > 0 {
		s.log.Info("expired subscriptions", slog.String("op", op), slog.Int64("count", n))
	}
	return n, nil
}

func (s *Service) activate(ctx context.Context, userID string, plan models.Plan) (bool, error) {
	now := s.now().UTC()
	return s.repo.ActivateSubscription(ctx, userID, plan, now, now.Add(s.cfg.Period))
}

func (s *Service) verify(ctx context.Context, reference string) (*paymentprovider.Transaction, error) {
	key := "provider:verify:" + reference
	if s.cache != nil {
		var cached paymentprovider.Transaction
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn("verify cache read failed", slog.String("key", key), sl.Err(err))
		} else if found {
			return &cached, nil
		}
	}

	if s.provider == nil {
		return nil, ErrProviderUnavailable
	}
	tx, err := s.provider.VerifyTransaction(ctx, reference)
	if err != nil {
		s.log.Error("provider verification failed", slog.String("reference", reference), sl.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if s.cache != nil && tx.Successful() {
		if err := s.cache.Set(ctx, key, tx, s.verifyTTL); err != nil {
			s.log.Warn("verify cache write failed", slog.String("key", key), sl.Err(err))
		}
	}
	return tx, nil
}

func (s *Service) findPlan(name string) (config.Plan, bool) {
	name = strings.TrimSpace(name)
	for _, p := range s.cfg.Plans {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return config.Plan{}, false
}

func (s *Service) dispatch(log *slog.Logger, job models.CommissionJob) {
	if s.dispatcher == nil {
		log.Warn("no commission dispatcher configured")
		return
	}
	if err := s.dispatcher.Dispatch(job); err != nil {
		log.Error("failed to dispatch commission job", slog.String("user_id", job.UserID), sl.Err(err))
	}
}
