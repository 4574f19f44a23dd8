// Package commission уведомляет партнёрский сервис о разовой комиссии
// за активацию подписки и ведёт журнал попыток.
package commission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/smartlink-billing/internal/affiliate"
	"github.com/magabrotheeeer/smartlink-billing/internal/config"
	"github.com/magabrotheeeer/smartlink-billing/internal/lib/sl"
	"github.com/magabrotheeeer/smartlink-billing/internal/metrics"
	"github.com/magabrotheeeer/smartlink-billing/internal/models"
)

const notConfiguredMessage = "affiliate api not configured"

var (
	// ErrNotConfigured не заданы адрес или секрет партнёрского сервиса.
	ErrNotConfigured = errors.New(notConfiguredMessage)
	// ErrAffiliateRejected партнёрский сервис отклонил запрос (404, 400, 401).
	ErrAffiliateRejected = errors.New("affiliate rejected commission")
	// ErrRetriesExhausted все попытки завершились временными ошибками.
	ErrRetriesExhausted = errors.New("commission retries exhausted")
)

// Outcome итог одного вызова Notify.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeAlreadyNotified Outcome = "already_notified"
	OutcomeRejected        Outcome = "rejected"
	OutcomeFailed          Outcome = "failed"
	OutcomeNotConfigured   Outcome = "not_configured"
	OutcomeSkipped         Outcome = "skipped"
	OutcomeLocked          Outcome = "locked"
	OutcomeInProgress      Outcome = "in_progress"
)

// Repository профили и журнал уведомлений.
type Repository interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	MarkCommissionNotified(ctx context.Context, userID string, at time.Time) error
	HasBeenNotified(ctx context.Context, userID, reference string) (bool, error)
	HasUserBeenNotified(ctx context.Context, userID string) (bool, error)
	ClaimNotification(ctx context.Context, n models.CommissionNotification, staleBefore time.Time) (bool, error)
	RecordNotification(ctx context.Context, n models.CommissionNotification) error
	ListRetryableNotifications(ctx context.Context, maxRetries, limit int, staleBefore time.Time) ([]*models.CommissionNotification, error)
	ListNotificationsByUser(ctx context.Context, userID string) ([]*models.CommissionNotification, error)
	DeleteNotification(ctx context.Context, userID, reference string) (bool, error)
}

// AffiliateClient одна попытка отправки комиссии.
type AffiliateClient interface {
	SendCommission(ctx context.Context, payload affiliate.CommissionPayload) (*affiliate.Response, error)
}

// Locker распределённая блокировка.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// NotifyRequest данные одного уведомления.
type NotifyRequest struct {
	UserID     string
	ReferrerID string
	UserEmail  string
	Plan       models.Plan
	Reference  string
	ClientName string
}

// Result итог обработки.
type Result struct {
	Outcome    Outcome `json:"outcome"`
	Reason     Reason  `json:"reason,omitempty"`
	Reference  string  `json:"reference,omitempty"`
	Attempts   int     `json:"attempts"`
	StatusCode int     `json:"status_code,omitempty"`
}

// Service уведомитель о комиссиях.
type Service struct {
	log      *slog.Logger
	repo     Repository
	client   AffiliateClient
	locker   Locker
	metrics  *metrics.Metrics
	cfg      config.Affiliate
	plans    []config.Plan
	lockTTL  time.Duration
	budget   time.Duration
	now      func() time.Time
	newTimer func() backoff.Timer
}

// New создаёт уведомитель. locker и m могут быть nil.
func New(
	log *slog.Logger,
	repo Repository,
	client AffiliateClient,
	locker Locker,
	m *metrics.Metrics,
	cfg config.Affiliate,
	plans []config.Plan,
	lockTTL time.Duration,
) *Service {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &Service{
		log:      log,
		repo:     repo,
		client:   client,
		locker:   locker,
		metrics:  m,
		cfg:      cfg,
		plans:    plans,
		lockTTL:  lockTTL,
		budget:   notifyBudget(cfg),
		now:      time.Now,
		newTimer: func() backoff.Timer { return nil },
	}
}

// Notify отправляет одно уведомление с повторами и записывает итог в журнал.
func (s *Service) Notify(ctx context.Context, req NotifyRequest) (Result, error) {
	const op = "commission.Notify"

	if strings.TrimSpace(req.Reference) == "" {
		req.Reference = fallbackReference(req.UserID, s.now())
	}
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", req.UserID),
		slog.String("reference", req.Reference),
	)
	res := Result{Reference: req.Reference}

	row := models.CommissionNotification{
		UserID:           req.UserID,
		ReferrerID:       req.ReferrerID,
		PaymentReference: req.Reference,
		UserEmail:        req.UserEmail,
		Amount:           s.commissionAmount(req.Plan),
	}

	if !s.cfg.Configured() {
		log.Error("affiliate api not configured")
		row.Status = models.NotificationFailed
		row.ErrorMessage = notConfiguredMessage
		if err := s.record(ctx, row); err != nil {
			return res, fmt.Errorf("%s: %w", op, err)
		}
		res.Outcome = OutcomeNotConfigured
		s.metrics.Commission(string(res.Outcome))
		return res, fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}

	row.Status = models.NotificationPending
	row.UpdatedAt = s.now().UTC()
	claimed, err := s.repo.ClaimNotification(ctx, row, row.UpdatedAt.Add(-s.claimTTL()))
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	if !claimed {
		notified, err := s.repo.HasBeenNotified(ctx, req.UserID, req.Reference)
		if err != nil {
			return res, fmt.Errorf("%s: %w", op, err)
		}
		if !notified {
			log.Info("commission notification is being sent by another worker")
			res.Outcome = OutcomeInProgress
			s.metrics.Commission(string(res.Outcome))
			return res, nil
		}
		if err := s.markNotified(ctx, req.UserID); err != nil {
			return res, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("commission already notified")
		res.Outcome = OutcomeAlreadyNotified
		s.metrics.Commission(string(res.Outcome))
		return res, nil
	}

	payload := s.payload(req)
	var (
		resp     *affiliate.Response
		failures int
	)
	operation := func() error {
		res.Attempts++
		s.metrics.CommissionAttempt()
		r, err := s.client.SendCommission(ctx, payload)
		if err == nil {
			resp = r
			return nil
		}
		var statusErr *affiliate.StatusError
		if errors.As(err, &statusErr) && !retryable(statusErr.Code) {
			return backoff.Permanent(err)
		}
		failures++
		return err
	}
	onRetry := func(err error, wait time.Duration) {
		log.Warn("commission attempt failed, retrying",
			slog.Int("attempt", res.Attempts),
			slog.Duration("wait", wait),
			sl.Err(err),
		)
	}

	sendErr := backoff.RetryNotifyWithTimer(operation, s.backOff(ctx), onRetry, s.newTimer())
	if sendErr == nil {
		res.StatusCode = resp.StatusCode
		return s.succeed(ctx, log, row, resp, failures, res)
	}

	row.Status = models.NotificationFailed
	row.RetryCount = failures
	var statusErr *affiliate.StatusError
	if errors.As(sendErr, &statusErr) {
		res.StatusCode = statusErr.Code
	}

	if statusErr != nil && !retryable(statusErr.Code) {
		row.ErrorMessage = rejectionMessage(statusErr, req.ReferrerID)
		res.Outcome = OutcomeRejected
		log.Error("affiliate rejected commission", slog.Int("status", statusErr.Code), slog.String("error", row.ErrorMessage))
	} else {
		row.ErrorMessage = failureMessage(sendErr)
		res.Outcome = OutcomeFailed
		log.Error("commission notification failed", slog.Int("attempts", res.Attempts), sl.Err(sendErr))
	}

	if err := s.record(ctx, row); err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.Commission(string(res.Outcome))

	if res.Outcome == OutcomeRejected {
		return res, fmt.Errorf("%s: %w: %s", op, ErrAffiliateRejected, row.ErrorMessage)
	}
	return res, fmt.Errorf("%s: %w: %s", op, ErrRetriesExhausted, row.ErrorMessage)
}

func (s *Service) succeed(ctx context.Context, log *slog.Logger, row models.CommissionNotification, resp *affiliate.Response, failures int, res Result) (Result, error) {
	const op = "commission.Notify"

	row.Status = models.NotificationSuccess
	row.RetryCount = failures
	row.ResponseData = resp.Body
	if err := s.record(ctx, row); err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.markNotified(ctx, row.UserID); err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("commission notification sent", slog.Int("attempts", res.Attempts), slog.String("agent_code", row.ReferrerID))
	res.Outcome = OutcomeSuccess
	s.metrics.Commission(string(res.Outcome))
	return res, nil
}

// markNotified ставит commission_notified. Повторный вызов ничего не меняет,
// поэтому им же чинится профиль после сбоя между записью success и флагом.
func (s *Service) markNotified(ctx context.Context, userID string) error {
	return s.repo.MarkCommissionNotified(ctx, userID, s.now().UTC())
}

// claimTTL возраст pending-строки, после которого её владелец считается
// упавшим и строку можно захватить заново.
func (s *Service) claimTTL() time.Duration {
	return 2 * s.budget
}

// SweepTimeout сколько может длиться проход повторной рассылки на limit строк.
// Столько же живёт блокировка прохода.
func (s *Service) SweepTimeout(limit int) time.Duration {
	return max(s.lockTTL, time.Duration(max(limit, 1))*s.budget+time.Minute)
}

// notifyBudget верхняя оценка одного Notify: все попытки с таймаутом
// клиента и паузы между ними.
func notifyBudget(cfg config.Affiliate) time.Duration {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	total := time.Duration(cfg.MaxAttempts) * timeout
	wait := cfg.InitialBackoff
	for i := 1; i < cfg.MaxAttempts; i++ {
		total += min(wait, cfg.MaxBackoff)
		wait *= 2
	}
	return total
}

func (s *Service) record(ctx context.Context, row models.CommissionNotification) error {
	row.UpdatedAt = s.now().UTC()
	return s.repo.RecordNotification(ctx, row)
}

// backOff 1s, 2s, 4s... с потолком MaxBackoff, без случайного разброса
// и без общего дедлайна. Количество попыток ограничено MaxAttempts.
func (s *Service) backOff(ctx context.Context) backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     s.cfg.InitialBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         s.cfg.MaxBackoff,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.MaxAttempts-1)), ctx)
}

func (s *Service) payload(req NotifyRequest) affiliate.CommissionPayload {
	p := affiliate.CommissionPayload{
		AgentCode:  req.ReferrerID,
		UserEmail:  req.UserEmail,
		Reference:  req.Reference,
		ClientName: req.ClientName,
	}
	if s.cfg.PayloadVersion == "amount" {
		amount := s.commissionAmount(req.Plan)
		p.Amount = &amount
		return p
	}
	plan := req.Plan
	if plan == "" {
		plan = models.PlanIndividual
	}
	p.PlanType = string(plan)
	return p
}

func (s *Service) commissionAmount(plan models.Plan) int64 {
	for _, p := range s.plans {
		if strings.EqualFold(p.Name, string(plan)) {
			return p.CommissionAmount
		}
	}
	return 0
}

// retryable 404, 400 и 401 считаются окончательным отказом.
func retryable(code int) bool {
	switch code {
	case http.StatusNotFound, http.StatusBadRequest, http.StatusUnauthorized:
		return false
	default:
		return true
	}
}

func rejectionMessage(err *affiliate.StatusError, agentCode string) string {
	if err.Code == http.StatusNotFound {
		return fmt.Sprintf("invalid agent code: %s not found in affiliate system", agentCode)
	}
	return failureMessage(err)
}

func failureMessage(err error) string {
	var statusErr *affiliate.StatusError
	if errors.As(err, &statusErr) {
		body := strings.TrimSpace(statusErr.Body)
		if json.Valid([]byte(body)) || body == "" {
			return fmt.Sprintf("HTTP %d: %s", statusErr.Code, body)
		}
		return fmt.Sprintf("HTTP %d: %q", statusErr.Code, body)
	}
	return err.Error()
}

// fallbackReference ссылка вида LCS_<user>_<unixms>_<8 символов uuid>.
func fallbackReference(userID string, now time.Time) string {
	return fmt.Sprintf("LCS_%s_%d_%s", userID, now.UnixMilli(), uuid.NewString()[:8])
}
