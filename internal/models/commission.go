package models

import (
	"encoding/json"
	"time"
)

// NotificationStatus статус попытки уведомления партнёрского сервиса.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSuccess NotificationStatus = "success"
	NotificationFailed  NotificationStatus = "failed"
)

// CommissionNotification строка журнала уведомлений. Одна на пару
// (UserID, PaymentReference), обновляется на месте при повторах.
type CommissionNotification struct {
	ID               int64              `json:"id"`
	UserID           string             `json:"user_id"`
	ReferrerID       string             `json:"referrer_id"`
	PaymentReference string             `json:"payment_reference"`
	UserEmail        string             `json:"user_email"`
	Amount           int64              `json:"amount"`
	Status           NotificationStatus `json:"status"`
	ResponseData     json.RawMessage    `json:"response_data,omitempty"`
	ErrorMessage     string             `json:"error_message,omitempty"`
	RetryCount       int                `json:"retry_count"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// CommissionJob фоновая задача, которую порождает активация подписки.
type CommissionJob struct {
	UserID    string `json:"user_id"`
	Reference string `json:"reference"`
	Plan      Plan   `json:"plan"`
	Source    string `json:"source"` // webhook, verification, replay
}
