package commission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/smartlink-billing/internal/lib/sl"
	"github.com/magabrotheeeer/smartlink-billing/internal/models"
)

const sweepLockKey = "commission:sweep:lock"

// ErrSweepInProgress повторная рассылка уже идёт в другом процессе.
var ErrSweepInProgress = errors.New("retry sweep already in progress")

// SweepOptions параметры повторной рассылки.
type SweepOptions struct {
	Limit      int
	StaleAfter time.Duration
}

// RetryFailed повторяет неудачные и зависшие уведомления, старые первыми.
// Каждая строка проходит тот же путь, что и новая задача: блокировка
// пользователя, свежий профиль, проверка права на комиссию.
// Возвращает число записей, перешедших в success.
func (s *Service) RetryFailed(ctx context.Context, opts SweepOptions) (int, error) {
	const op = "commission.RetryFailed"
	log := s.log.With(slog.String("op", op))

	// Проход обрывается раньше, чем истечёт его блокировка.
	timeout := s.SweepTimeout(opts.Limit)
	if s.locker != nil {
		token, ok, err := s.locker.Lock(ctx, sweepLockKey, timeout+time.Minute)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		if !ok {
			return 0, fmt.Errorf("%s: %w", op, ErrSweepInProgress)
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), sweepLockKey, token); err != nil {
				log.Warn("failed to release sweep lock", sl.Err(err))
			}
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	staleBefore := s.now().UTC().Add(-opts.StaleAfter)
	rows, err := s.repo.ListRetryableNotifications(ctx, s.cfg.MaxAttempts, opts.Limit, staleBefore)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("retrying commission notifications", slog.Int("candidates", len(rows)))

	succeeded := 0
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return succeeded, fmt.Errorf("%s: %w", op, err)
		}
		res, err := s.Process(ctx, models.CommissionJob{
			UserID:    row.UserID,
			Reference: row.PaymentReference,
			Source:    "sweep",
		})
		if err != nil && !recorded(err) {
			return succeeded, fmt.Errorf("%s: %w", op, err)
		}
		if res.Outcome == OutcomeSuccess {
			succeeded++
		}
	}

	s.metrics.SweepRecovered(succeeded)
	log.Info("retry sweep finished", slog.Int("succeeded", succeeded), slog.Int("candidates", len(rows)))
	return succeeded, nil
}
