// Package events разбирает проверенные события провайдера по обработчикам.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/smartlink-billing/internal/affiliate"
	"github.com/magabrotheeeer/smartlink-billing/internal/lib/sl"
	"github.com/magabrotheeeer/smartlink-billing/internal/metrics"
	"github.com/magabrotheeeer/smartlink-billing/internal/models"
)

// SubscriptionService переходы подписки по платёжным событиям.
type SubscriptionService interface {
	ApplyChargeSuccess(ctx context.Context, data models.EventData) error
	ApplyChargeFailed(ctx context.Context, data models.EventData) error
}

// TransferForwarder пересылает события о выплатах партнёрскому сервису.
type TransferForwarder interface {
	ForwardTransfer(ctx context.Context, payload affiliate.TransferPayload) error
}

// Router маршрутизатор событий.
type Router struct {
	log       *slog.Logger
	subs      SubscriptionService
	forwarder TransferForwarder
	metrics   *metrics.Metrics
}

// NewRouter создаёт маршрутизатор. forwarder и m могут быть nil.
func NewRouter(log *slog.Logger, subs SubscriptionService, forwarder TransferForwarder, m *metrics.Metrics) *Router {
	return &Router{log: log, subs: subs, forwarder: forwarder, metrics: m}
}

// Route обрабатывает одно событие. Ошибка возвращается только если
// изменение состояния подписки не удалось и провайдеру стоит повторить доставку.
func (r *Router) Route(ctx context.Context, ev *models.InboundEvent) error {
	const op = "events.Route"
	log := r.log.With(
		slog.String("op", op),
		slog.String("event", ev.Event),
		slog.String("reference", ev.Data.Reference),
	)

	switch {
	case strings.HasPrefix(ev.Event, models.EventTransferPrefix):
		r.forwardTransfer(ctx, log, ev)
		r.metrics.WebhookEvent(ev.Event, "forwarded")
		return nil

	case ev.Event == models.EventChargeSuccess:
		if err := r.subs.ApplyChargeSuccess(ctx, ev.Data); err != nil {
			r.metrics.WebhookEvent(ev.Event, "error")
			return fmt.Errorf("%s: %w", op, err)
		}

	case ev.Event == models.EventChargeFailed:
		if err := r.subs.ApplyChargeFailed(ctx, ev.Data); err != nil {
			r.metrics.WebhookEvent(ev.Event, "error")
			return fmt.Errorf("%s: %w", op, err)
		}

	default:
		log.Info("ignoring unhandled event")
		r.metrics.WebhookEvent(ev.Event, "ignored")
		return nil
	}

	r.metrics.WebhookEvent(ev.Event, "ok")
	return nil
}

func (r *Router) forwardTransfer(ctx context.Context, log *slog.Logger, ev *models.InboundEvent) {
	if r.forwarder == nil {
		log.Warn("transfer forwarding not configured")
		r.metrics.TransferForward("not_configured")
		return
	}

	err := r.forwarder.ForwardTransfer(ctx, affiliate.TransferPayload{
		Event:        ev.Event,
		Reference:    ev.Data.Reference,
		Amount:       ev.Data.Amount,
		Recipient:    ev.Data.Recipient,
		TransferCode: ev.Data.TransferCode,
		Status:       ev.Data.Status,
		Reason:       ev.Data.Reason,
		Payload:      ev.Raw,
	})
	switch {
	case errors.Is(err, affiliate.ErrTransferNotConfigured):
		log.Warn("transfer forwarding not configured")
		r.metrics.TransferForward("not_configured")
	case err != nil:
		log.Error("failed to forward transfer event", sl.Err(err))
		r.metrics.TransferForward("error")
	default:
		log.Info("transfer event forwarded")
		r.metrics.TransferForward("ok")
	}
}
