package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/smartlink-billing/internal/services/commission"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Replay(ctx context.Context, userID, reference string) (commission.Result, error) {
	args := m.Called(ctx, userID, reference)
	return args.Get(0).(commission.Result), args.Error(1)
}

func TestReplayHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	tests := []struct {
		name           string
		result         commission.Result
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "replayed",
			result:         commission.Result{Outcome: commission.OutcomeSuccess, Reference: "ref-1", Attempts: 1, StatusCode: 200},
			expectedStatus: http.StatusOK,
			expectedBody:   `"outcome":"success"`,
		},
		{
			name:           "already succeeded",
			result:         commission.Result{Outcome: commission.OutcomeAlreadyNotified, Reference: "ref-1"},
			err:            fmt.Errorf("commission.Replay: %w", commission.ErrNothingToReplay),
			expectedStatus: http.StatusConflict,
			expectedBody:   `commission already succeeded`,
		},
		{
			name:           "affiliate rejected",
			result:         commission.Result{Outcome: commission.OutcomeRejected, Reference: "ref-1", Attempts: 1, StatusCode: 404},
			err:            fmt.Errorf("commission.Replay: %w", commission.ErrAffiliateRejected),
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `"outcome":"rejected"`,
		},
		{
			name:           "storage failure",
			err:            errors.New("db down"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `internal error`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("Replay", mock.Anything, "u1", "ref-1").Return(tt.result, tt.err).Once()

			r := chi.NewRouter()
			r.Post("/admin/commissions/{userID}/{reference}/replay", New(logger, svc).ServeHTTP)

			req := httptest.NewRequest(http.MethodPost, "/admin/commissions/u1/ref-1/replay", nil)
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
