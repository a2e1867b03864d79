package services_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"etkash_go_backend/internal/database"
	"etkash_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type MockQuotaLedger struct {
	mock.Mock
}

func (m *MockQuotaLedger) GetQuota(ctx context.Context, userID uint) (*models.UserTokenUsage, error) {
	args := m.Called(ctx, userID)
	usage, _ := args.Get(0).(*models.UserTokenUsage)
	return usage, args.Error(1)
}

func (m *MockQuotaLedger) Consume(ctx context.Context, userID uint, amount int64) (*models.UserTokenUsage, error) {
	args := m.Called(ctx, userID, amount)
	usage, _ := args.Get(0).(*models.UserTokenUsage)
	return usage, args.Error(1)
}

func (m *MockQuotaLedger) CreateQuota(ctx context.Context, userID uint, monthlyLimit int64) (*models.UserTokenUsage, error) {
	args := m.Called(ctx, userID, monthlyLimit)
	usage, _ := args.Get(0).(*models.UserTokenUsage)
	return usage, args.Error(1)
}

func (m *MockQuotaLedger) Refund(ctx context.Context, userID uint, amount int64, periodStart time.Time) (*models.UserTokenUsage, error) {
	args := m.Called(ctx, userID, amount, periodStart)
	usage, _ := args.Get(0).(*models.UserTokenUsage)
	return usage, args.Error(1)
}

type MockChatLog struct {
	mock.Mock
}

func (m *MockChatLog) StartSession(ctx context.Context, clientID string) error {
	args := m.Called(ctx, clientID)
	return args.Error(0)
}

func (m *MockChatLog) Append(ctx context.Context, clientID string, entry models.ChatEntry) error {
	args := m.Called(ctx, clientID, entry)
	return args.Error(0)
}

func (m *MockChatLog) History(ctx context.Context, clientID string) ([]models.ChatEntry, error) {
	args := m.Called(ctx, clientID)
	history, _ := args.Get(0).([]models.ChatEntry)
	return history, args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, msg interface{}) {
	m.Called(topic, msg)
}

// newTestDB opens a private in-memory sqlite database with the schema migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Driver: database.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String()),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "not-a-real-hash",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func setTokensUsed(t *testing.T, db *gorm.DB, userID uint, used int64) {
	t.Helper()
	require.NoError(t, db.Model(&models.UserTokenUsage{}).
		Where("user_id = ?", userID).
		Update("tokens_used", used).Error)
}
