package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/magabrotheeeer/smartlink-billing/internal/models"
	"github.com/magabrotheeeer/smartlink-billing/internal/storage/repository"
)

// memStore хранилище в памяти с семантикой SQL-запросов репозитория.
type memStore struct {
	mu       sync.Mutex
	profiles map[string]*models.Profile
	rows     map[string]*models.CommissionNotification
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{
		profiles: map[string]*models.Profile{},
		rows:     map[string]*models.CommissionNotification{},
	}
}

func (s *memStore) UpsertProfile(_ context.Context, in models.ProfileInput, now time.Time) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[in.UserID]
	if !ok {
		p = &models.Profile{UserID: in.UserID, CreatedAt: now}
		s.profiles[in.UserID] = p
	}
	p.Email, p.FullName, p.UpdatedAt = in.Email, in.FullName, now
	if p.Referrer() == "" && in.ReferrerID != "" {
		ref := in.ReferrerID
		p.ReferrerID = &ref
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) GetProfile(_ context.Context, userID string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) ActivateSubscription(_ context.Context, userID string, plan models.Plan, paidAt, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return false, nil
	}
	p.SubscriptionActive = true
	p.Plan = plan
	p.SubscriptionExpiresAt = &expiresAt
	p.SubscriptionLastPaymentAt = &paidAt
	if p.SubscriptionStartedAt == nil {
		p.SubscriptionStartedAt = &paidAt
	}
	return true, nil
}

func (s *memStore) DeactivateSubscription(_ context.Context, userID string, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return false, nil
	}
	p.SubscriptionActive = false
	return true, nil
}

func (s *memStore) ExpireSubscriptions(_ context.Context, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, p := range s.profiles {
		if p.SubscriptionActive && p.SubscriptionExpiresAt != nil && !p.SubscriptionExpiresAt.After(at) {
			p.SubscriptionActive = false
			n++
		}
	}
	return n, nil
}

func (s *memStore) CountActiveSubscribers(_ context.Context, plan models.Plan, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.profiles {
		if p.SubscriptionActive && p.Plan == plan && p.SubscriptionExpiresAt != nil && p.SubscriptionExpiresAt.After(at) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) MarkCommissionNotified(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return repository.ErrProfileNotFound
	}
	p.CommissionNotified = true
	p.CommissionNotifiedAt = &at
	return nil
}

func (s *memStore) HasBeenNotified(_ context.Context, userID, reference string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[userID+"|"+reference]
	return ok && n.Status == models.NotificationSuccess, nil
}

func (s *memStore) HasUserBeenNotified(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.rows {
		if n.UserID == userID && n.Status == models.NotificationSuccess {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ClaimNotification(_ context.Context, n models.CommissionNotification, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := n.UserID + "|" + n.PaymentReference
	existing, ok := s.rows[key]
	if !ok {
		s.nextID++
		n.ID, n.CreatedAt, n.Status = s.nextID, n.UpdatedAt, models.NotificationPending
		s.rows[key] = &n
		return true, nil
	}
	switch {
	case existing.Status == models.NotificationFailed:
	case existing.Status == models.NotificationPending && existing.UpdatedAt.Before(staleBefore):
	default:
		return false, nil
	}
	existing.Status, existing.UpdatedAt = models.NotificationPending, n.UpdatedAt
	existing.ReferrerID, existing.UserEmail, existing.Amount = n.ReferrerID, n.UserEmail, n.Amount
	return true, nil
}

func (s *memStore) RecordNotification(_ context.Context, n models.CommissionNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := n.UserID + "|" + n.PaymentReference
	existing, ok := s.rows[key]
	if !ok {
		s.nextID++
		n.ID, n.CreatedAt = s.nextID, n.UpdatedAt
		s.rows[key] = &n
		return nil
	}
	if existing.Status == models.NotificationSuccess {
		return nil
	}
	n.ID, n.CreatedAt = existing.ID, existing.CreatedAt
	n.RetryCount = max(existing.RetryCount, n.RetryCount)
	s.rows[key] = &n
	return nil
}

func (s *memStore) ListRetryableNotifications(_ context.Context, maxRetries, limit int, staleBefore time.Time) ([]*models.CommissionNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.CommissionNotification
	for _, n := range s.rows {
		if n.RetryCount >= maxRetries {
			continue
		}
		if n.Status == models.NotificationFailed || (n.Status == models.NotificationPending && n.UpdatedAt.Before(staleBefore)) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ListNotificationsByUser(_ context.Context, userID string) ([]*models.CommissionNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.CommissionNotification
	for _, n := range s.rows {
		if n.UserID == userID {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) DeleteNotification(_ context.Context, userID, reference string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "|" + reference
	n, ok := s.rows[key]
	if !ok || n.Status == models.NotificationSuccess {
		return false, nil
	}
	delete(s.rows, key)
	return true, nil
}
