package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.WebhookEvent("charge.success", "ok")
	m.WebhookEvent("charge.success", "ok")
	m.Commission("success")
	m.CommissionAttempt()
	m.CommissionAttempt()
	m.SweepRecovered(3)
	m.SweepRecovered(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("charge.success", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commissions.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.commissionTries))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sweepRetried))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.WebhookEvent("x", "y")
		m.Transition("webhook", "activated")
		m.Commission("failed")
		m.CommissionAttempt()
		m.TransferForward("error")
		m.SweepRecovered(1)
	})
}

func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
