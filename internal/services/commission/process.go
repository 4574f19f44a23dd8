package commission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/smartlink-billing/internal/lib/sl"
	"github.com/magabrotheeeer/smartlink-billing/internal/models"
	"github.com/magabrotheeeer/smartlink-billing/internal/storage/repository"
)

// ErrNothingToReplay для пары (user, reference) уже есть успешная запись.
var ErrNothingToReplay = errors.New("commission already succeeded")

// Process обрабатывает задачу, порождённую активацией: берёт блокировку
// по пользователю, перечитывает профиль, проверяет право на комиссию
// и отправляет уведомление.
func (s *Service) Process(ctx context.Context, job models.CommissionJob) (Result, error) {
	const op = "commission.Process"
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", job.UserID),
		slog.String("reference", job.Reference),
		slog.String("source", job.Source),
	)

	if s.locker != nil {
		key := "commission:lock:" + job.UserID
		token, ok, err := s.locker.Lock(ctx, key, s.lockTTL)
		switch {
		case err != nil:
			log.Warn("failed to take commission lock, continuing without it", sl.Err(err))
		case !ok:
			log.Info("commission for user is already being processed")
			return Result{Outcome: OutcomeLocked, Reference: job.Reference}, nil
		default:
			defer func() {
				if err := s.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
					log.Warn("failed to release commission lock", sl.Err(err))
				}
			}()
		}
	}

	profile, err := s.repo.GetProfile(ctx, job.UserID)
	if errors.Is(err, repository.ErrProfileNotFound) {
		log.Warn("profile not found, skipping commission")
		return Result{Outcome: OutcomeSkipped, Reason: ReasonNoProfile, Reference: job.Reference}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	ok, reason := ShouldNotify(profile)
	if !ok {
		log.Info("user not eligible for commission", slog.String("reason", string(reason)))
		return Result{Outcome: OutcomeSkipped, Reason: reason, Reference: job.Reference}, nil
	}

	// Флаг в профиле мог не записаться после успешной отправки.
	paid, err := s.repo.HasUserBeenNotified(ctx, job.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	if paid {
		if err := s.markNotified(ctx, job.UserID); err != nil {
			return Result{}, fmt.Errorf("%s: %w", op, err)
		}
		log.Warn("commission already paid for user, notified flag restored")
		return Result{Outcome: OutcomeAlreadyNotified, Reason: ReasonAlreadyNotified, Reference: job.Reference}, nil
	}

	return s.Notify(ctx, requestFor(profile, job.Reference))
}

// HandleMessage обработчик сообщений из очереди. Ошибка возвращается только
// при сбое инфраструктуры, тогда сообщение вернётся в очередь. Неудачные
// отправки уже записаны в журнал и подберутся повторной рассылкой.
func (s *Service) HandleMessage(ctx context.Context, body []byte) error {
	const op = "commission.HandleMessage"

	var job models.CommissionJob
	if err := json.Unmarshal(body, &job); err != nil || job.UserID == "" {
		s.log.Error("dropping malformed commission job", slog.String("op", op), slog.String("body", string(body)))
		return nil
	}

	_, err := s.Process(ctx, job)
	if err == nil || recorded(err) {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Replay административный сброс: удаляет неуспешную запись журнала
// и повторяет обработку синхронно.
func (s *Service) Replay(ctx context.Context, userID, reference string) (Result, error) {
	const op = "commission.Replay"

	notified, err := s.repo.HasBeenNotified(ctx, userID, reference)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	if notified {
		return Result{Outcome: OutcomeAlreadyNotified, Reference: reference}, fmt.Errorf("%s: %w", op, ErrNothingToReplay)
	}

	if _, err := s.repo.DeleteNotification(ctx, userID, reference); err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("replaying commission", slog.String("op", op), slog.String("user_id", userID), slog.String("reference", reference))

	res, err := s.Process(ctx, models.CommissionJob{UserID: userID, Reference: reference, Source: "replay"})
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// Defer сохраняет задачу, которую не удалось поставить в очередь: пишет
// pending-строку, зависание которой заметит повторная рассылка.
// Для неподходящих пользователей ничего не пишется.
func (s *Service) Defer(ctx context.Context, job models.CommissionJob, cause error) error {
	const op = "commission.Defer"
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", job.UserID),
		slog.String("reference", job.Reference),
	)

	profile, err := s.repo.GetProfile(ctx, job.UserID)
	if errors.Is(err, repository.ErrProfileNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ok, _ := ShouldNotify(profile); !ok {
		return nil
	}

	req := requestFor(profile, job.Reference)
	if strings.TrimSpace(req.Reference) == "" {
		req.Reference = fallbackReference(req.UserID, s.now())
	}
	now := s.now().UTC()
	claimed, err := s.repo.ClaimNotification(ctx, models.CommissionNotification{
		UserID:           req.UserID,
		ReferrerID:       req.ReferrerID,
		PaymentReference: req.Reference,
		UserEmail:        req.UserEmail,
		Amount:           s.commissionAmount(req.Plan),
		Status:           models.NotificationPending,
		UpdatedAt:        now,
	}, now.Add(-s.claimTTL()))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if claimed {
		log.Warn("commission job left for retry sweep", slog.String("pending_reference", req.Reference), sl.Err(cause))
	}
	return nil
}

// StatusReport диагностическое состояние комиссии пользователя.
type StatusReport struct {
	UserID        string                           `json:"user_id"`
	ReferrerID    string                           `json:"referrer_id,omitempty"`
	Active        bool                             `json:"subscription_active"`
	Notified      bool                             `json:"commission_notified"`
	Eligible      bool                             `json:"eligible"`
	Reason        Reason                           `json:"reason"`
	Notifications []*models.CommissionNotification `json:"notifications"`
}

// Status собирает профиль, вердикт ShouldNotify и журнал пользователя.
func (s *Service) Status(ctx context.Context, userID string) (*StatusReport, error) {
	const op = "commission.Status"

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rows, err := s.repo.ListNotificationsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rows == nil {
		rows = []*models.CommissionNotification{}
	}

	eligible, reason := ShouldNotify(profile)
	return &StatusReport{
		UserID:        profile.UserID,
		ReferrerID:    profile.Referrer(),
		Active:        profile.SubscriptionActive,
		Notified:      profile.CommissionNotified,
		Eligible:      eligible,
		Reason:        reason,
		Notifications: rows,
	}, nil
}

func requestFor(p *models.Profile, reference string) NotifyRequest {
	plan := p.Plan
	if plan == "" {
		plan = models.PlanIndividual
	}
	return NotifyRequest{
		UserID:     p.UserID,
		ReferrerID: p.Referrer(),
		UserEmail:  p.Email,
		Plan:       plan,
		Reference:  reference,
		ClientName: p.FullName,
	}
}

// recorded true для ошибок, итог которых уже записан в журнал.
func recorded(err error) bool {
	return errors.Is(err, ErrNotConfigured) ||
		errors.Is(err, ErrAffiliateRejected) ||
		errors.Is(err, ErrRetriesExhausted)
}
