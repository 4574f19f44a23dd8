package commission

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/smartlink-billing/internal/affiliate"
	"github.com/magabrotheeeer/smartlink-billing/internal/config"
	"github.com/magabrotheeeer/smartlink-billing/internal/models"
	"github.com/magabrotheeeer/smartlink-billing/internal/storage/repository"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeRepo хранилище в памяти с той же семантикой upsert, что и PostgreSQL.
type fakeRepo struct {
	mu       sync.Mutex
	profiles map[string]*models.Profile
	rows     map[string]*models.CommissionNotification
	writes   []models.CommissionNotification
	nextID   int64
	getErr   error
	// markErrs ошибки MarkCommissionNotified, по одной на вызов.
	markErrs []error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		profiles: map[string]*models.Profile{},
		rows:     map[string]*models.CommissionNotification{},
	}
}

func (r *fakeRepo) addProfile(p *models.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.UserID] = p
}

func (r *fakeRepo) addRow(n models.CommissionNotification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	n.ID = r.nextID
	r.rows[n.UserID+"|"+n.PaymentReference] = &n
}

func (r *fakeRepo) row(userID, reference string) *models.CommissionNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[userID+"|"+reference]
	if !ok {
		return nil
	}
	cp := *n
	return &cp
}

func (r *fakeRepo) GetProfile(_ context.Context, userID string) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	p, ok := r.profiles[userID]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) MarkCommissionNotified(_ context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.markErrs) > 0 {
		err := r.markErrs[0]
		r.markErrs = r.markErrs[1:]
		return err
	}
	p, ok := r.profiles[userID]
	if !ok {
		return repository.ErrProfileNotFound
	}
	p.CommissionNotified = true
	if p.CommissionNotifiedAt == nil {
		p.CommissionNotifiedAt = &at
	}
	return nil
}

func (r *fakeRepo) HasBeenNotified(_ context.Context, userID, reference string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[userID+"|"+reference]
	return ok && n.Status == models.NotificationSuccess, nil
}

func (r *fakeRepo) HasUserBeenNotified(_ context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.rows {
		if n.UserID == userID && n.Status == models.NotificationSuccess {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) ClaimNotification(_ context.Context, n models.CommissionNotification, staleBefore time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := n.UserID + "|" + n.PaymentReference
	existing, ok := r.rows[key]
	if !ok {
		r.nextID++
		n.ID = r.nextID
		n.Status = models.NotificationPending
		n.CreatedAt = n.UpdatedAt
		r.rows[key] = &n
		r.writes = append(r.writes, n)
		return true, nil
	}
	claimable := existing.Status == models.NotificationFailed ||
		(existing.Status == models.NotificationPending && existing.UpdatedAt.Before(staleBefore))
	if !claimable {
		return false, nil
	}
	existing.Status = models.NotificationPending
	existing.ReferrerID, existing.UserEmail, existing.Amount = n.ReferrerID, n.UserEmail, n.Amount
	existing.UpdatedAt = n.UpdatedAt
	r.writes = append(r.writes, *existing)
	return true, nil
}

func (r *fakeRepo) RecordNotification(_ context.Context, n models.CommissionNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, n)
	key := n.UserID + "|" + n.PaymentReference
	existing, ok := r.rows[key]
	if !ok {
		r.nextID++
		n.ID = r.nextID
		n.CreatedAt = n.UpdatedAt
		r.rows[key] = &n
		return nil
	}
	if existing.Status == models.NotificationSuccess {
		return nil
	}
	retry := max(existing.RetryCount, n.RetryCount)
	n.ID, n.CreatedAt, n.RetryCount = existing.ID, existing.CreatedAt, retry
	r.rows[key] = &n
	return nil
}

func (r *fakeRepo) ListRetryableNotifications(_ context.Context, maxRetries, limit int, staleBefore time.Time) ([]*models.CommissionNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CommissionNotification
	for _, n := range r.rows {
		if n.RetryCount >= maxRetries {
			continue
		}
		if n.Status == models.NotificationFailed || (n.Status == models.NotificationPending && n.UpdatedAt.Before(staleBefore)) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) ListNotificationsByUser(_ context.Context, userID string) ([]*models.CommissionNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CommissionNotification
	for _, n := range r.rows {
		if n.UserID == userID {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRepo) DeleteNotification(_ context.Context, userID, reference string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := userID + "|" + reference
	n, ok := r.rows[key]
	if !ok || n.Status == models.NotificationSuccess {
		return false, nil
	}
	delete(r.rows, key)
	return true, nil
}

// affiliateStub фейковый партнёрский сервис: отвечает кодами по очереди,
// последний код повторяется.
type affiliateStub struct {
	mu       sync.Mutex
	codes    []int
	payloads []map[string]any
	auth     []string
	srv      *httptest.Server
}

func newAffiliateStub(t *testing.T, codes ...int) *affiliateStub {
	t.Helper()
	s := &affiliateStub{codes: codes}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		s.mu.Lock()
		idx := len(s.payloads)
		s.payloads = append(s.payloads, body)
		s.auth = append(s.auth, r.Header.Get("Authorization"))
		code := s.codes[min(idx, len(s.codes)-1)]
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if code < 300 {
			_, _ = w.Write([]byte(`{"commission_id":"c-1","status":"created"}`))
			return
		}
		_, _ = w.Write([]byte(`{"error":"upstream"}`))
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *affiliateStub) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

// instantTimer срабатывает сразу и запоминает запрошенные паузы.
type instantTimer struct {
	mu    *sync.Mutex
	waits *[]time.Duration
	c     chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	t.mu.Lock()
	*t.waits = append(*t.waits, d)
	t.mu.Unlock()
	t.c <- time.Now()
}
func (t *instantTimer) Stop()               {}
func (t *instantTimer) C() <-chan time.Time { return t.c }

type waitLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (w *waitLog) all() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.waits...)
}

func testAffiliateConfig(url string) config.Affiliate {
	return config.Affiliate{
		CommissionURL:  url,
		Secret:         "aff-secret",
		Timeout:        5 * time.Second,
		PayloadVersion: "plan",
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
	}
}

func testPlans() []config.Plan {
	return []config.Plan{
		{Name: "Individual", Amount: 49900, CommissionAmount: 5000},
		{Name: "Professional", Amount: 99900, CommissionAmount: 10000},
	}
}

func newTestService(t *testing.T, repo *fakeRepo, cfg config.Affiliate, locker Locker) (*Service, *waitLog) {
	t.Helper()
	svc := New(newNoopLogger(), repo, affiliate.New(cfg), locker, nil, cfg, testPlans(), time.Minute)
	svc.now = func() time.Time { return fixedNow }

	wl := &waitLog{}
	svc.newTimer = func() backoff.Timer {
		return &instantTimer{mu: &wl.mu, waits: &wl.waits, c: make(chan time.Time, 1)}
	}
	require.NotNil(t, svc)
	return svc, wl
}

func eligibleProfile(userID string) *models.Profile {
	ref := "AGENT1"
	return &models.Profile{
		UserID:             userID,
		Email:              userID + "@example.com",
		FullName:           "Jane Doe",
		ReferrerID:         &ref,
		Plan:               models.PlanProfessional,
		SubscriptionActive: true,
	}
}
