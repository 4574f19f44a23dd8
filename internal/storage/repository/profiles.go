package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/smartlink-billing/internal/models"
)

const profileColumns = `user_id, email, full_name, referrer_id, plan,
	subscription_active, subscription_expires_at, subscription_started_at, subscription_last_payment_at,
	commission_notified, commission_notified_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	var (
		p                                          models.Profile
		referrer, plan                             sql.NullString
		expiresAt, startedAt, lastPaymentAt, notAt sql.NullTime
	)
	err := row.Scan(
		&p.UserID, &p.Email, &p.FullName, &referrer, &plan,
		&p.SubscriptionActive, &expiresAt, &startedAt, &lastPaymentAt,
		&p.CommissionNotified, &notAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ReferrerID = ptrString(referrer)
	if plan.Valid {
		p.Plan = models.Plan(plan.String)
	}
	p.SubscriptionExpiresAt = ptrTime(expiresAt)
	p.SubscriptionStartedAt = ptrTime(startedAt)
	p.SubscriptionLastPaymentAt = ptrTime(lastPaymentAt)
	p.CommissionNotifiedAt = ptrTime(notAt)
	return &p, nil
}

func ptrTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

// UpsertProfile создаёт профиль при первом входе или обновляет контактные данные.
// referrer_id записывается только если он ещё пуст.
func (s *Storage) UpsertProfile(ctx context.Context, in models.ProfileInput, now time.Time) (*models.Profile, error) {
	const op = "storage.UpsertProfile"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO profiles (user_id, email, full_name, referrer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = CASE WHEN EXCLUDED.full_name <> '' THEN EXCLUDED.full_name ELSE profiles.full_name END,
			referrer_id = COALESCE(profiles.referrer_id, EXCLUDED.referrer_id),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + profileColumns
	p, err := scanProfile(s.DB.QueryRowContext(ctx, query,
		in.UserID, in.Email, in.FullName, nullableString(in.ReferrerID), now))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// GetProfile возвращает профиль по user_id или ErrProfileNotFound.
func (s *Storage) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	const op = "storage.GetProfile"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	p, err := scanProfile(s.DB.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrProfileNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// ActivateSubscription переводит профиль в активное состояние одним UPDATE.
// Дата начала сохраняется, если уже была. Возвращает false, если профиля нет.
func (s *Storage) ActivateSubscription(ctx context.Context, userID string, plan models.Plan, paidAt, expiresAt time.Time) (bool, error) {
	const op = "storage.ActivateSubscription"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE profiles SET
			subscription_active = TRUE,
			subscription_expires_at = $3,
			subscription_started_at = COALESCE(subscription_started_at, $4),
			subscription_last_payment_at = $4,
			plan = $2,
			updated_at = $4
		WHERE user_id = $1`
	res, err := s.DB.ExecContext(ctx, query, userID, string(plan), expiresAt, paidAt)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return affected(op, res)
}

// DeactivateSubscription снимает флаг активности, не трогая историю дат.
func (s *Storage) DeactivateSubscription(ctx context.Context, userID string, at time.Time) (bool, error) {
	const op = "storage.DeactivateSubscription"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE profiles SET subscription_active = FALSE, updated_at = $2 WHERE user_id = $1`,
		userID, at)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return affected(op, res)
}

// ExpireSubscriptions деактивирует подписки с истёкшим сроком.
func (s *Storage) ExpireSubscriptions(ctx context.Context, at time.Time) (int64, error) {
	const op = "storage.ExpireSubscriptions"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE profiles SET subscription_active = FALSE, updated_at = $1
		WHERE subscription_active AND subscription_expires_at <= $1`, at)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// CountActiveSubscribers считает активных подписчиков тарифа на момент at.
func (s *Storage) CountActiveSubscribers(ctx context.Context, plan models.Plan, at time.Time) (int, error) {
	const op = "storage.CountActiveSubscribers"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM profiles
		WHERE subscription_active AND plan = $1 AND subscription_expires_at > $2`,
		string(plan), at).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// MarkCommissionNotified ставит флаг разовой комиссии. Время первой отметки сохраняется.
func (s *Storage) MarkCommissionNotified(ctx context.Context, userID string, at time.Time) error {
	const op = "storage.MarkCommissionNotified"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE profiles SET
			commission_notified = TRUE,
			commission_notified_at = COALESCE(commission_notified_at, $2),
			updated_at = $2
		WHERE user_id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ok, err := affected(op, res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrProfileNotFound)
	}
	return nil
}

func affected(op string, res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}
