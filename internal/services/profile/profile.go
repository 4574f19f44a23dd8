// Package profile создание и обновление профиля при входе пользователя.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/smartlink-billing/internal/models"
)

// Repository хранилище профилей.
type Repository interface {
	UpsertProfile(ctx context.Context, in models.ProfileInput, now time.Time) (*models.Profile, error)
}

// Service сервис профилей.
type Service struct {
	log  *slog.Logger
	repo Repository
	now  func() time.Time
}

// New создаёт сервис профилей.
func New(log *slog.Logger, repo Repository) *Service {
	return &Service{log: log, repo: repo, now: time.Now}
}

// Upsert сохраняет профиль. Пустое имя заменяется частью email до @.
// Реферер записывается только при первом появлении.
func (s *Service) Upsert(ctx context.Context, in models.ProfileInput) (*models.Profile, error) {
	const op = "profile.Upsert"

	in.UserID = strings.TrimSpace(in.UserID)
	in.Email = strings.TrimSpace(in.Email)
	in.ReferrerID = strings.TrimSpace(in.ReferrerID)
	in.FullName = strings.TrimSpace(in.FullName)
	if in.FullName == "" {
		in.FullName, _, _ = strings.Cut(in.Email, "@")
	}

	p, err := s.repo.UpsertProfile(ctx, in, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if in.ReferrerID != "" && p.Referrer() != in.ReferrerID {
		s.log.Info("referrer already set, keeping original",
			slog.String("op", op),
			slog.String("user_id", in.UserID),
			slog.String("kept", p.Referrer()),
			slog.String("ignored", in.ReferrerID),
		)
	}
	return p, nil
}
