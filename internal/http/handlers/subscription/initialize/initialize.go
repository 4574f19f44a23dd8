// Package initialize создаёт транзакцию у провайдера для оформления подписки.
package initialize

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/magabrotheeeer/smartlink-billing/internal/http/response"
	"github.com/magabrotheeeer/smartlink-billing/internal/lib/sl"
	"github.com/magabrotheeeer/smartlink-billing/internal/paymentprovider"
	"github.com/magabrotheeeer/smartlink-billing/internal/services/subscription"
	"github.com/magabrotheeeer/smartlink-billing/internal/storage/repository"
)

// Request тело запроса на оформление подписки.
type Request struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	Plan   string `json:"plan" validate:"required,max=64"`
}

// Service оформление подписки.
type Service interface {
	Initialize(ctx context.Context, userID, planName string) (*paymentprovider.InitializeResult, error)
}

// Handler обработчик оформления подписки.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Оформить подписку
// @Description Проверяет профиль и лимит тарифа, создаёт транзакцию у провайдера
// @Tags Subscriptions
// @Accept  json
// @Produce  json
// @Param request body Request true "Пользователь и тариф"
// @Success 200 {object} response.Response{data=paymentprovider.InitializeResult}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или неизвестный тариф"
// @Failure 404 {object} response.ErrorResponse "Профиль не найден"
// @Failure 409 {object} response.ErrorResponse "Лимит тарифа исчерпан"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 502 {object} response.ErrorResponse "Провайдер недоступен"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /subscriptions/initialize [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.initialize"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Warn("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	res, err := h.service.Initialize(r.Context(), req.UserID, req.Plan)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrProfileNotFound):
		log.Warn("profile not found", slog.String("user_id", req.UserID))
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("profile not found"))
		return
	case errors.Is(err, subscription.ErrUnknownPlan):
		log.Warn("unknown plan", slog.String("plan", req.Plan))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("unknown plan"))
		return
	case errors.Is(err, subscription.ErrPlanFull):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, response.Error("plan is full"))
		return
	case errors.Is(err, subscription.ErrProviderUnavailable):
		log.Error("provider unavailable", sl.Err(err))
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, response.Error("payment provider unavailable"))
		return
	default:
		log.Error("failed to initialize subscription", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("subscription initialized", slog.String("user_id", req.UserID), slog.String("reference", res.Reference))
	render.JSON(w, r, response.StatusOKWithData(res))
}
