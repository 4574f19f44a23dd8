// Package upsert создаёт или обновляет профиль пользователя при входе.
// Код партнёра записывается только один раз.
package upsert

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/magabrotheeeer/smartlink-billing/internal/http/response"
	"github.com/magabrotheeeer/smartlink-billing/internal/lib/sl"
	"github.com/magabrotheeeer/smartlink-billing/internal/models"
)

// Request тело запроса.
type Request struct {
	UserID     string `json:"user_id" validate:"required,max=128"`
	Email      string `json:"email" validate:"required,email"`
	FullName   string `json:"full_name,omitempty" validate:"max=256"`
	ReferrerID string `json:"referrer_id,omitempty" validate:"max=64"`
}

// Service сервис профилей.
type Service interface {
	Upsert(ctx context.Context, in models.ProfileInput) (*models.Profile, error)
}

// Handler обработчик.
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
// @Summary Создать или обновить профиль
// @Tags Profiles
// @Accept  json
// @Produce  json
// @Param request body Request true "Данные профиля"
// @Success 200 {object} response.Response{data=models.Profile}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /profiles [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.profile.upsert"
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

	p, err := h.service.Upsert(r.Context(), models.ProfileInput{
		UserID:     req.UserID,
		Email:      req.Email,
		FullName:   req.FullName,
		ReferrerID: req.ReferrerID,
	})
	if err != nil {
		log.Error("failed to upsert profile", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("profile saved", slog.String("user_id", p.UserID))
	render.JSON(w, r, response.StatusOKWithData(p))
}
