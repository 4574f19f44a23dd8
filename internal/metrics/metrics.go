// Package metrics счётчики Prometheus для вебхуков, комиссий и повторов.
// Методы безопасны для nil-получателя, поэтому сервисы в тестах
// можно создавать без метрик.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics набор счётчиков биллинга.
type Metrics struct {
	webhookEvents    *prometheus.CounterVec
	activations      *prometheus.CounterVec
	commissions      *prometheus.CounterVec
	commissionTries  prometheus.Counter
	transferForwards *prometheus.CounterVec
	sweepRetried     prometheus.Counter
}

// New регистрирует счётчики в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Provider events by type and outcome.",
		}, []string{"event", "outcome"}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_subscription_transitions_total",
			Help: "Subscription state transitions by source and result.",
		}, []string{"source", "result"}),
		commissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_commission_notifications_total",
			Help: "Commission notification outcomes.",
		}, []string{"outcome"}),
		commissionTries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_commission_attempts_total",
			Help: "HTTP attempts made to the affiliate service.",
		}),
		transferForwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_transfer_forwards_total",
			Help: "Transfer events forwarded to the affiliate service.",
		}, []string{"outcome"}),
		sweepRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_sweep_recovered_total",
			Help: "Audit rows moved to success by the retry sweep.",
		}),
	}
	reg.MustRegister(
		m.webhookEvents,
		m.activations,
		m.commissions,
		m.commissionTries,
		m.transferForwards,
		m.sweepRetried,
	)
	return m
}

// WebhookEvent учитывает обработанное событие.
func (m *Metrics) WebhookEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(event, outcome).Inc()
}

// Transition учитывает переход подписки.
func (m *Metrics) Transition(source, result string) {
	if m == nil {
		return
	}
	m.activations.WithLabelValues(source, result).Inc()
}

// Commission учитывает итог уведомления о комиссии.
func (m *Metrics) Commission(outcome string) {
	if m == nil {
		return
	}
	m.commissions.WithLabelValues(outcome).Inc()
}

// CommissionAttempt учитывает одну HTTP-попытку.
func (m *Metrics) CommissionAttempt() {
	if m == nil {
		return
	}
	m.commissionTries.Inc()
}

// TransferForward учитывает пересылку события о выплате.
func (m *Metrics) TransferForward(outcome string) {
	if m == nil {
		return
	}
	m.transferForwards.WithLabelValues(outcome).Inc()
}

// SweepRecovered учитывает строки, доведённые повтором до success.
func (m *Metrics) SweepRecovered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepRetried.Add(float64(n))
}
