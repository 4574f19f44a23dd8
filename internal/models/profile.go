// Package models содержит доменные модели биллинга: профиль пользователя
// с состоянием подписки, запись журнала уведомлений о комиссиях,
// входящее событие провайдера и фоновую задачу по комиссии.
package models

import (
	"strings"
	"time"
)

// Plan тариф подписки.
type Plan string

const (
	// PlanIndividual младший тариф, он же тариф по умолчанию.
	PlanIndividual Plan = "Individual"
	// PlanProfessional старший тариф.
	PlanProfessional Plan = "Professional"
)

// ParsePlan приводит значение из метаданных платежа к тарифу.
// Неизвестные значения дают младший тариф.
func ParsePlan(raw string) Plan {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "professional":
		return PlanProfessional
	default:
		return PlanIndividual
	}
}

// Profile представляет пользователя и его биллинговое состояние.
type Profile struct {
	UserID                    string     `json:"user_id"`
	Email                     string     `json:"email"`
	FullName                  string     `json:"full_name"`
	ReferrerID                *string    `json:"referrer_id,omitempty"` // код партнёра, записывается один раз
	Plan                      Plan       `json:"plan,omitempty"`
	SubscriptionActive        bool       `json:"subscription_active"`
	SubscriptionExpiresAt     *time.Time `json:"subscription_expires_at,omitempty"`
	SubscriptionStartedAt     *time.Time `json:"subscription_started_at,omitempty"`
	SubscriptionLastPaymentAt *time.Time `json:"subscription_last_payment_at,omitempty"`
	CommissionNotified        bool       `json:"commission_notified"`
	CommissionNotifiedAt      *time.Time `json:"commission_notified_at,omitempty"`
	CreatedAt                 time.Time  `json:"created_at"`
	UpdatedAt                 time.Time  `json:"updated_at"`
}

// Referrer возвращает код партнёра без пробелов или пустую строку.
func (p *Profile) Referrer() string {
	if p.ReferrerID == nil {
		return ""
	}
	return strings.TrimSpace(*p.ReferrerID)
}

// ProfileInput данные для создания или обновления профиля при входе пользователя.
type ProfileInput struct {
	UserID     string
	Email      string
	FullName   string
	ReferrerID string
}
