// Package webhook принимает вебхуки платёжного провайдера.
//
// Тело читается целиком до разбора, подпись проверяется по сырым байтам,
// затем событие передаётся маршрутизатору. Ответ всегда {"ok": bool}.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/magabrotheeeer/smartlink-billing/internal/http/response"
	"github.com/magabrotheeeer/smartlink-billing/internal/lib/sl"
	"github.com/magabrotheeeer/smartlink-billing/internal/models"
)

const maxBodyBytes = 1 << 20

// Verifier проверяет подпись тела.
type Verifier interface {
	Verify(body []byte, signature string) bool
}

// Router применяет событие к состоянию биллинга.
type Router interface {
	Route(ctx context.Context, ev *models.InboundEvent) error
}

// Handler обработчик вебхука.
type Handler struct {
	log             *slog.Logger
	verifier        Verifier
	router          Router
	signatureHeader string
}

// New создаёт Handler. signatureHeader имя заголовка с подписью.
func New(log *slog.Logger, verifier Verifier, router Router, signatureHeader string) *Handler {
	return &Handler{
		log:             log,
		verifier:        verifier,
		router:          router,
		signatureHeader: signatureHeader,
	}
}

// ServeHTTP godoc
// @Summary Вебхук платёжного провайдера
// @Description Проверяет HMAC-SHA512 подпись тела и применяет событие charge.* или пересылает transfer.*
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param x-provider-signature header string true "hex HMAC-SHA512 тела"
// @Success 200 {object} response.Ack
// @Failure 401 {object} response.Ack "Неверная подпись"
// @Failure 500 {object} response.Ack "Нечитаемое тело или ошибка обработки события"
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Ack{OK: false})
		return
	}

	if !h.verifier.Verify(body, r.Header.Get(h.signatureHeader)) {
		log.Warn("invalid or missing webhook signature")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Ack{OK: false})
		return
	}

	var ev models.InboundEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Ack{OK: false})
		return
	}
	ev.Raw = body

	if err := h.router.Route(r.Context(), &ev); err != nil {
		log.Error("failed to process webhook event", slog.String("event", ev.Event), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Ack{OK: false})
		return
	}

	log.Info("webhook processed", slog.String("event", ev.Event), slog.String("reference", ev.Data.Reference))
	render.JSON(w, r, response.Ack{OK: true})
}
