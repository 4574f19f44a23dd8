// Package replay повторяет уведомление о комиссии вручную.
package replay

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
)

// Service ручной повтор.
type Service interface {
	Replay(ctx context.Context, userID, reference string) (commission.Result, error)
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
// @Summary Повторить уведомление о комиссии
// @Description Удаляет неуспешную запись журнала и синхронно обрабатывает комиссию заново
// @Tags Admin
// @Produce  json
// @Param userID path string true "ID пользователя"
// @Param reference path string true "Reference платежа"
// @Success 200 {object} response.Response{data=commission.Result}
// @Failure 409 {object} response.ErrorResponse "Уведомление уже успешно"
// @Failure 502 {object} response.Response{data=commission.Result} "Партнёрский сервис не принял уведомление"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/commissions/{userID}/{reference}/replay [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.commission.replay"
	userID := chi.URLParam(r, "userID")
	reference := chi.URLParam(r, "reference")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("user_id", userID),
		slog.String("reference", reference),
	)

	res, err := h.service.Replay(r.Context(), userID, reference)
	switch {
	case err == nil:
		log.Info("commission replayed", slog.String("outcome", string(res.Outcome)))
		render.JSON(w, r, response.StatusOKWithData(res))
	case errors.Is(err, commission.ErrNothingToReplay):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, response.Error("commission already succeeded"))
	case errors.Is(err, commission.ErrNotConfigured),
		errors.Is(err, commission.ErrAffiliateRejected),
		errors.Is(err, commission.ErrRetriesExhausted):
		log.Warn("replayed commission failed", sl.Err(err))
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, response.Response{
			Status: response.StatusError,
			Error:  "affiliate notification failed",
			Data:   res,
		})
	default:
		log.Error("failed to replay commission", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
	}
}
