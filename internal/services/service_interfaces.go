package services

import (
	"context"
	"time"

	"etkash_go_backend/internal/models"
)

// QuotaLedger enforces the monthly token allowance per user.
type QuotaLedger interface {
	GetQuota(ctx context.Context, userID uint) (*models.UserTokenUsage, error)
	Consume(ctx context.Context, userID uint, amount int64) (*models.UserTokenUsage, error)
	CreateQuota(ctx context.Context, userID uint, monthlyLimit int64) (*models.UserTokenUsage, error)
	Refund(ctx context.Context, userID uint, amount int64, periodStart time.Time) (*models.UserTokenUsage, error)
}

type CredentialStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	GetUserByID(ctx context.Context, userID uint) (*models.User, error)
	CreateUser(ctx context.Context, params NewUser) (*models.User, error)
	ListRewards(ctx context.Context, userID uint) ([]models.Reward, error)
}

// ChatLog owns the per-client conversation logs.
type ChatLog interface {
	StartSession(ctx context.Context, clientID string) error
	Append(ctx context.Context, clientID string, entry models.ChatEntry) error
	History(ctx context.Context, clientID string) ([]models.ChatEntry, error)
}

type Publisher interface {
	Publish(topic string, msg interface{})
}
