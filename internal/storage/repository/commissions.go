package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/smartlink-billing/internal/models"
)

const notificationColumns = `id, user_id, referrer_id, payment_reference, user_email, amount,
	status, response_data, error_message, retry_count, created_at, updated_at`

func scanNotification(row rowScanner) (*models.CommissionNotification, error) {
	var (
		n            models.CommissionNotification
		status       string
		responseData []byte
		errorMessage sql.NullString
	)
	err := row.Scan(
		&n.ID, &n.UserID, &n.ReferrerID, &n.PaymentReference, &n.UserEmail, &n.Amount,
		&status, &responseData, &errorMessage, &n.RetryCount, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Status = models.NotificationStatus(status)
	if len(responseData) > 0 {
		n.ResponseData = json.RawMessage(responseData)
	}
	n.ErrorMessage = errorMessage.String
	return &n, nil
}

// HasBeenNotified true только если для пары (user, reference) уже есть строка со статусом success.
func (s *Storage) HasBeenNotified(ctx context.Context, userID, reference string) (bool, error) {
	const op = "storage.HasBeenNotified"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var exists bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM commission_notifications
			WHERE user_id = $1 AND payment_reference = $2 AND status = 'success'
		)`, userID, reference).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// HasUserBeenNotified true, если у пользователя есть хотя бы одна строка success
// по любой ссылке.
func (s *Storage) HasUserBeenNotified(ctx context.Context, userID string) (bool, error) {
	const op = "storage.HasUserBeenNotified"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var exists bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM commission_notifications
			WHERE user_id = $1 AND status = 'success'
		)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// ClaimNotification атомарно переводит строку (user_id, payment_reference)
// в pending и возвращает true только одному из конкурирующих вызовов.
// Захватить можно новую строку, строку failed или pending, не обновлявшуюся
// с момента staleBefore. Строки success и свежие pending не захватываются.
func (s *Storage) ClaimNotification(ctx context.Context, n models.CommissionNotification, staleBefore time.Time) (bool, error) {
	const op = "storage.ClaimNotification"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	updatedAt := n.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query := `INSERT INTO commission_notifications
			(user_id, referrer_id, payment_reference, user_email, amount, status,
			 retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $7)
		ON CONFLICT (user_id, payment_reference) DO UPDATE SET
			referrer_id = EXCLUDED.referrer_id,
			user_email = EXCLUDED.user_email,
			amount = EXCLUDED.amount,
			status = 'pending',
			updated_at = EXCLUDED.updated_at
		WHERE commission_notifications.status = 'failed'
		   OR (commission_notifications.status = 'pending' AND commission_notifications.updated_at < $8)
		RETURNING id`
	var id int64
	err := s.DB.QueryRowContext(ctx, query,
		n.UserID, n.ReferrerID, n.PaymentReference, n.UserEmail, n.Amount,
		n.RetryCount, updatedAt, staleBefore).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// RecordNotification вставляет или обновляет строку журнала по ключу
// (user_id, payment_reference). retry_count не уменьшается, строка
// со статусом success больше не перезаписывается.
func (s *Storage) RecordNotification(ctx context.Context, n models.CommissionNotification) error {
	const op = "storage.RecordNotification"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var responseData any
	if len(n.ResponseData) > 0 && json.Valid(n.ResponseData) {
		responseData = string(n.ResponseData)
	}
	updatedAt := n.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query := `INSERT INTO commission_notifications
			(user_id, referrer_id, payment_reference, user_email, amount, status,
			 response_data, error_message, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (user_id, payment_reference) DO UPDATE SET
			referrer_id = EXCLUDED.referrer_id,
			user_email = EXCLUDED.user_email,
			amount = EXCLUDED.amount,
			status = EXCLUDED.status,
			response_data = EXCLUDED.response_data,
			error_message = EXCLUDED.error_message,
			retry_count = GREATEST(commission_notifications.retry_count, EXCLUDED.retry_count),
			updated_at = EXCLUDED.updated_at
		WHERE commission_notifications.status <> 'success'`
	_, err := s.DB.ExecContext(ctx, query,
		n.UserID, n.ReferrerID, n.PaymentReference, n.UserEmail, n.Amount, string(n.Status),
		responseData, nullableString(n.ErrorMessage), n.RetryCount, updatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListRetryableNotifications выбирает неудачные строки с остатком бюджета
// повторов и зависшие pending-строки, старые первыми.
func (s *Storage) ListRetryableNotifications(ctx context.Context, maxRetries, limit int, staleBefore time.Time) ([]*models.CommissionNotification, error) {
	const op = "storage.ListRetryableNotifications"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + notificationColumns + `
		FROM commission_notifications
		WHERE retry_count < $1
		  AND (status = 'failed' OR (status = 'pending' AND updated_at < $2))
		ORDER BY created_at ASC, id ASC
		LIMIT $3`
	rows, err := s.DB.QueryContext(ctx, query, maxRetries, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return collectNotifications(op, rows)
}

// ListNotificationsByUser история уведомлений пользователя, новые первыми.
func (s *Storage) ListNotificationsByUser(ctx context.Context, userID string) ([]*models.CommissionNotification, error) {
	const op = "storage.ListNotificationsByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM commission_notifications
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return collectNotifications(op, rows)
}

// DeleteNotification административный сброс: удаляет строку, если она не success.
func (s *Storage) DeleteNotification(ctx context.Context, userID, reference string) (bool, error) {
	const op = "storage.DeleteNotification"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM commission_notifications
		WHERE user_id = $1 AND payment_reference = $2 AND status <> 'success'`,
		userID, reference)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return affected(op, res)
}

func collectNotifications(op string, rows *sql.Rows) ([]*models.CommissionNotification, error) {
	var result []*models.CommissionNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
