package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/smartlink-billing/internal/migrations"
	"github.com/magabrotheeeer/smartlink-billing/internal/models"
)

// TestDataFactory содержит методы для создания тестовых данных
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создает новую фабрику тестовых данных
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateProfile создает профиль с рефералом (пустая строка означает без реферала)
func (f *TestDataFactory) CreateProfile(t *testing.T, userID, email, referrer string) {
	_, err := f.storage.UpsertProfile(context.Background(), models.ProfileInput{
		UserID:     userID,
		Email:      email,
		ReferrerID: referrer,
	}, time.Now().UTC())
	require.NoError(t, err)
}

// CreateNotification вставляет строку журнала с заданным временем создания
func (f *TestDataFactory) CreateNotification(t *testing.T, userID, reference string, status models.NotificationStatus, retryCount int, createdAt time.Time) {
	_, err := f.storage.DB.Exec(`INSERT INTO commission_notifications
		(user_id, referrer_id, payment_reference, user_email, status, retry_count, created_at, updated_at)
		VALUES ($1, 'AGENT1', $2, 'user@example.com', $3, $4, $5, $5)`,
		userID, reference, string(status), retryCount, createdAt)
	require.NoError(t, err)
}

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Пробуем подключиться несколько раз с ретраями
	var storage *Storage
	for range 10 {
		storage, err = New(connStr)
		if err == nil {
			break
		}
		time.Sleep(1 * time.Second)
	}
	require.NoError(t, err, "Failed to create storage after retries")

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath), "Failed to apply migrations")

	cleanup := func() {
		if storage != nil && storage.DB != nil {
			_ = storage.DB.Close()
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return storage, cleanup
}
