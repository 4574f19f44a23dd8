package commission

import (
	"strings"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/smartlink-billing/internal/models"
)

// Reason причина, по которой профиль подходит или не подходит для комиссии.
type Reason string

const (
	ReasonEligible        Reason = "eligible"
	ReasonNoProfile       Reason = "profile_not_found"
	ReasonNoReferrer      Reason = "no_referrer"
	ReasonInactive        Reason = "subscription_inactive"
	ReasonAlreadyNotified Reason = "already_notified"
	ReasonInvalidEmail    Reason = "invalid_email"
)

var validate = validator.New()

// ShouldNotify решает, положена ли партнёру разовая комиссия за профиль.
// Нужны все четыре условия: есть реферер, подписка активна, комиссия ещё
// не отправлялась, email корректен.
func ShouldNotify(p *models.Profile) (bool, Reason) {
	if p == nil {
		return false, ReasonNoProfile
	}
	if p.Referrer() == "" {
		return false, ReasonNoReferrer
	}
	if !p.SubscriptionActive {
		return false, ReasonInactive
	}
	if p.CommissionNotified {
		return false, ReasonAlreadyNotified
	}
	if validate.Var(strings.TrimSpace(p.Email), "required,email") != nil {
		return false, ReasonInvalidEmail
	}
	return true, ReasonEligible
}
