// Package retry запускает повторную отправку неудачных уведомлений о комиссиях.
// Вызывается планировщиком по секрету cron.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/magabrotheeeer/smartlink-billing/internal/lib/sl"
	"github.com/magabrotheeeer/smartlink-billing/internal/services/commission"
)

const (
	// DefaultLimit число строк за проход, если limit не задан.
	DefaultLimit = 10
	// MaxLimit верхняя граница limit.
	MaxLimit = 50
)

// Result тело ответа.
type Result struct {
	Success      bool   `json:"success"`
	RetriedCount int    `json:"retriedCount"`
	Limit        int    `json:"limit,omitempty"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Service повторная рассылка.
type Service interface {
	RetryFailed(ctx context.Context, opts commission.SweepOptions) (int, error)
	SweepTimeout(limit int) time.Duration
}

// Handler обработчик повторной рассылки.
type Handler struct {
	log        *slog.Logger
	service    Service
	staleAfter time.Duration
}

// New создаёт Handler. staleAfter возраст, после которого pending считается зависшим.
func New(log *slog.Logger, service Service, staleAfter time.Duration) *Handler {
	return &Handler{log: log, service: service, staleAfter: staleAfter}
}

// ServeHTTP godoc
// @Summary Повторить неудачные уведомления о комиссиях
// @Tags Commissions
// @Produce  json
// @Param limit query int false "Сколько строк обработать (по умолчанию 10, максимум 50)"
// @Success 200 {object} Result
// @Failure 401 {object} response.ErrorResponse "Неверный секрет"
// @Failure 409 {object} Result "Рассылка уже идёт"
// @Failure 500 {object} Result "Ошибка сервера"
// @Router /commissions/retry [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.commission.retry"
	limit := ParseLimit(r.URL.Query().Get("limit"))
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Int("limit", limit),
	)

	// Проход может идти дольше WriteTimeout сервера.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Now().Add(h.service.SweepTimeout(limit))); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Warn("failed to extend write deadline", sl.Err(err))
	}

	n, err := h.service.RetryFailed(r.Context(), commission.SweepOptions{Limit: limit, StaleAfter: h.staleAfter})
	if errors.Is(err, commission.ErrSweepInProgress) {
		log.Info("retry sweep already in progress")
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, Result{Success: false, Limit: limit, Error: "retry sweep already in progress"})
		return
	}
	if err != nil {
		log.Error("retry sweep failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, Result{Success: false, Error: "retry sweep failed"})
		return
	}

	log.Info("retry sweep finished", slog.Int("retried", n))
	render.JSON(w, r, Result{
		Success:      true,
		RetriedCount: n,
		Limit:        limit,
		Message:      fmt.Sprintf("retried %d commission notification(s)", n),
	})
}

// ParseLimit разбирает limit из запроса: нечисловое или неположительное
// значение даёт DefaultLimit, слишком большое обрезается до MaxLimit.
func ParseLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return DefaultLimit
	}
	return min(n, MaxLimit)
}
