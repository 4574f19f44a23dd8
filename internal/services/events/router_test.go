package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/smartlink-billing/internal/affiliate"
	"github.com/magabrotheeeer/smartlink-billing/internal/models"
)

type SubscriptionMock struct{ mock.Mock }

func (m *SubscriptionMock) ApplyChargeSuccess(ctx context.Context, data models.EventData) error {
	return m.Called(ctx, data).Error(0)
}
func (m *SubscriptionMock) ApplyChargeFailed(ctx context.Context, data models.EventData) error {
	return m.Called(ctx, data).Error(0)
}

type ForwarderMock struct{ mock.Mock }

func (m *ForwarderMock) ForwardTransfer(ctx context.Context, payload affiliate.TransferPayload) error {
	return m.Called(ctx, payload).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRoute_Charges(t *testing.T) {
	data := models.EventData{Reference: "R1", Metadata: models.EventMetadata{UserID: "u1"}}

	tests := []struct {
		name    string
		event   string
		setup   func(*SubscriptionMock)
		wantErr bool
	}{
		{
			name:  "charge.success goes to activation",
			event: models.EventChargeSuccess,
			setup: func(s *SubscriptionMock) {
				s.On("ApplyChargeSuccess", mock.Anything, data).Return(nil).Once()
			},
		},
		{
			name:  "charge.failed goes to deactivation",
			event: models.EventChargeFailed,
			setup: func(s *SubscriptionMock) {
				s.On("ApplyChargeFailed", mock.Anything, data).Return(nil).Once()
			},
		},
		{
			name:  "activation error is returned",
			event: models.EventChargeSuccess,
			setup: func(s *SubscriptionMock) {
				s.On("ApplyChargeSuccess", mock.Anything, data).Return(errors.New("db down")).Once()
			},
			wantErr: true,
		},
		{
			name:  "unknown events are acknowledged",
			event: "subscription.create",
			setup: func(*SubscriptionMock) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs := new(SubscriptionMock)
			tt.setup(subs)
			r := NewRouter(newNoopLogger(), subs, nil, nil)

			err := r.Route(context.Background(), &models.InboundEvent{Event: tt.event, Data: data})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			subs.AssertExpectations(t)
		})
	}
}

func TestRoute_TransferForwarding(t *testing.T) {
	raw := json.RawMessage(`{"event":"transfer.success","data":{"reference":"T1","amount":5000}}`)
	ev := &models.InboundEvent{
		Event: "transfer.success",
		Data: models.EventData{
			Reference:    "T1",
			Amount:       5000,
			TransferCode: "TRF_1",
			Status:       "success",
			Recipient:    json.RawMessage(`{"name":"Agent"}`),
		},
		Raw: raw,
	}
	want := affiliate.TransferPayload{
		Event:        "transfer.success",
		Reference:    "T1",
		Amount:       5000,
		Recipient:    json.RawMessage(`{"name":"Agent"}`),
		TransferCode: "TRF_1",
		Status:       "success",
		Payload:      raw,
	}

	for _, fwdErr := range []error{nil, errors.New("HTTP 503"), fmt.Errorf("wrap: %w", affiliate.ErrTransferNotConfigured)} {
		t.Run(fmt.Sprintf("forward error %v", fwdErr), func(t *testing.T) {
			subs := new(SubscriptionMock)
			fwd := new(ForwarderMock)
			fwd.On("ForwardTransfer", mock.Anything, want).Return(fwdErr).Once()
			r := NewRouter(newNoopLogger(), subs, fwd, nil)

			require.NoError(t, r.Route(context.Background(), ev), "transfer forwarding is best effort")
			fwd.AssertExpectations(t)
			subs.AssertNotCalled(t, "ApplyChargeSuccess", mock.Anything, mock.Anything)
		})
	}
}

func TestRoute_TransferWithoutForwarder(t *testing.T) {
	r := NewRouter(newNoopLogger(), new(SubscriptionMock), nil, nil)
	assert.NoError(t, r.Route(context.Background(), &models.InboundEvent{Event: "transfer.reversed"}))
}
