// Package status отдаёт диагностическое состояние комиссии пользователя.
package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/magabrotheeeer/smartlink-billing/internal/http/response"
	"github.com/magabrotheeeer/smartlink-billing/internal/lib/sl"
	"github.com/magabrotheeeer/smartlink-billing/internal/services/commission"
	"github.com/magabrotheeeer/smartlink-billing/internal/storage/repository"
)

// Service диагностика комиссий.
type Service interface {
	Status(ctx context.Context, userID string) (*commission.StatusReport, error)
}

// Handler обработчик.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Состояние комиссии пользователя
// @Description Профиль, вердикт проверки права на комиссию и журнал уведомлений
// @Tags Admin
// @Produce  json
// @Param userID path string true "ID пользователя"
// @Success 200 {object} response.Response{data=commission.StatusReport}
// @Failure 404 {object} response.ErrorResponse "Профиль не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/commissions/{userID} [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.commission.status"
	userID := chi.URLParam(r, "userID")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("user_id", userID),
	)

	report, err := h.service.Status(r.Context(), userID)
	if errors.Is(err, repository.ErrProfileNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("profile not found"))
		return
	}
	if err != nil {
		log.Error("failed to load commission status", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(report))
}
