package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/smartlink-billing/internal/config"
	"github.com/magabrotheeeer/smartlink-billing/internal/services/commission"
)

type fakeRetry struct {
	mu    sync.Mutex
	calls []commission.SweepOptions
	err   error
}

func (f *fakeRetry) RetryFailed(_ context.Context, opts commission.SweepOptions) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	return 1, f.err
}

func (f *fakeRetry) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeExpiry struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeExpiry) ExpireOverdue(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 0, nil
}

func (f *fakeExpiry) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func run(t *testing.T, a *App, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(d + time.Second):
		t.Fatal("sweeper did not stop after context cancel")
	}
}

func TestRun_TicksBothJobs(t *testing.T) {
	retry := &fakeRetry{}
	expiry := &fakeExpiry{}
	cfg := config.Sweep{
		Interval:          20 * time.Millisecond,
		ExpiryInterval:    40 * time.Millisecond,
		Limit:             7,
		StalePendingAfter: time.Minute,
	}

	run(t, NewWithServices(newNoopLogger(), cfg, retry, expiry), 150*time.Millisecond)

	assert.GreaterOrEqual(t, retry.count(), 3)
	assert.GreaterOrEqual(t, expiry.count(), 2)
	assert.Equal(t, commission.SweepOptions{Limit: 7, StaleAfter: time.Minute}, retry.calls[0])
}

func TestRun_SurvivesSweepErrors(t *testing.T) {
	retry := &fakeRetry{err: errors.New("db down")}
	expiry := &fakeExpiry{}
	cfg := config.Sweep{Interval: 10 * time.Millisecond, ExpiryInterval: time.Hour, Limit: 10}

	run(t, NewWithServices(newNoopLogger(), cfg, retry, expiry), 80*time.Millisecond)

	assert.GreaterOrEqual(t, retry.count(), 3)
	assert.Equal(t, 1, expiry.count())
}

func TestRun_SweepInProgressIsNotFatal(t *testing.T) {
	retry := &fakeRetry{err: commission.ErrSweepInProgress}
	expiry := &fakeExpiry{}
	cfg := config.Sweep{Interval: 10 * time.Millisecond, ExpiryInterval: time.Hour, Limit: 10}

	run(t, NewWithServices(newNoopLogger(), cfg, retry, expiry), 50*time.Millisecond)

	assert.GreaterOrEqual(t, retry.count(), 2)
}
