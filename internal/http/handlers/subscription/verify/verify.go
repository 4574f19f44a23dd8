// Package verify подтверждает оплату после возврата пользователя от провайдера
// и перенаправляет его в личный кабинет.
package verify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/magabrotheeeer/smartlink-billing/internal/http/response"
	"github.com/magabrotheeeer/smartlink-billing/internal/lib/sl"
	"github.com/magabrotheeeer/smartlink-billing/internal/services/subscription"
	"github.com/magabrotheeeer/smartlink-billing/internal/storage/repository"
)

// Service активирует подписку по reference транзакции.
type Service interface {
	ActivateFromVerification(ctx context.Context, reference string) error
}

// Handler обработчик подтверждения оплаты.
type Handler struct {
	log         *slog.Logger
	service     Service
	redirectURL string
}

// New создаёт Handler. dashboardURL адрес кабинета, к нему добавляется subscription=success.
func New(log *slog.Logger, service Service, dashboardURL string) *Handler {
	return &Handler{
		log:         log,
		service:     service,
		redirectURL: successURL(dashboardURL),
	}
}

// ServeHTTP godoc
// @Summary Подтвердить оплату
// @Description Запрашивает статус транзакции у провайдера, активирует подписку и перенаправляет в кабинет
// @Tags Subscriptions
// @Produce  json
// @Param reference query string true "Reference транзакции"
// @Success 302 "Перенаправление в кабинет"
// @Failure 400 {object} response.ErrorResponse "Нет reference или user_id в метаданных"
// @Failure 402 {object} response.ErrorResponse "Платёж не прошёл"
// @Failure 404 {object} response.ErrorResponse "Профиль не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка хранилища"
// @Failure 502 {object} response.ErrorResponse "Провайдер недоступен"
// @Router /subscriptions/verify [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.verify"
	reference := r.URL.Query().Get("reference")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("reference", reference),
	)

	err := h.service.ActivateFromVerification(r.Context(), reference)
	if err != nil {
		status, msg := classify(err)
		if status >= http.StatusInternalServerError {
			log.Error("payment verification failed", sl.Err(err))
		} else {
			log.Warn("payment verification rejected", sl.Err(err))
		}
		render.Status(r, status)
		render.JSON(w, r, response.Error(msg))
		return
	}

	log.Info("payment verified, redirecting to dashboard")
	http.Redirect(w, r, h.redirectURL, http.StatusFound)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, subscription.ErrMissingReference):
		return http.StatusBadRequest, "missing payment reference"
	case errors.Is(err, subscription.ErrMissingUserID):
		return http.StatusBadRequest, "missing user id in payment metadata"
	case errors.Is(err, subscription.ErrPaymentNotSuccessful):
		return http.StatusPaymentRequired, "payment not successful"
	case errors.Is(err, repository.ErrProfileNotFound):
		return http.StatusNotFound, "profile not found"
	case errors.Is(err, subscription.ErrProviderUnavailable):
		return http.StatusBadGateway, "payment provider unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func successURL(dashboard string) string {
	u, err := url.Parse(dashboard)
	if err != nil {
		return dashboard + "?subscription=success"
	}
	q := u.Query()
	q.Set("subscription", "success")
	u.RawQuery = q.Encode()
	return u.String()
}
