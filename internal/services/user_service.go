package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"etkash_go_backend/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type NewUser struct {
	Email        string
	Username     string
	PasswordHash string
	Birthday     *time.Time
}

type UserService struct {
	db                  *gorm.DB
	defaultMonthlyLimit int64
	ledgerOpts          []LedgerOption
}

var _ CredentialStore = (*UserService)(nil)

// NewUserService returns a credential store that provisions a quota of
// defaultMonthlyLimit tokens for every registered user. ledgerOpts configure
// the ledger used for that provisioning.
func NewUserService(db *gorm.DB, defaultMonthlyLimit int64, ledgerOpts ...LedgerOption) *UserService {
	return &UserService{
		db:                  db,
		defaultMonthlyLimit: defaultMonthlyLimit,
		ledgerOpts:          ledgerOpts,
	}
}

// FindByIdentifier looks a user up by email or username.
func (s *UserService) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ? OR username = ?", identifier, identifier).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// CreateUser inserts the user and its quota row in one transaction; either
// both exist afterwards or neither does.
func (s *UserService) CreateUser(ctx context.Context, params NewUser) (*models.User, error) {
	log := zerolog.Ctx(ctx)
	user := &models.User{
		Email:    strings.TrimSpace(params.Email),
		Username: strings.TrimSpace(params.Username),
		Password: params.PasswordHash,
		Birthday: params.Birthday,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.User{}).
			Where("email = ? OR username = ?", user.Email, user.Username).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrConflict
		}

		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConflict
			}
			return err
		}

		usage, err := NewQuotaLedgerDB(tx, s.ledgerOpts...).CreateQuota(ctx, user.ID, s.defaultMonthlyLimit)
		if err != nil {
			return err
		}
		user.TokenUsage = usage
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, err
		}
		log.Error().Err(err).Str("username", user.Username).Msg("Failed to register user")
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Uint("userID", user.ID).Str("username", user.Username).Msg("User registered")
	return user, nil
}

func (s *UserService) ListRewards(ctx context.Context, userID uint) ([]models.Reward, error) {
	var rewards []models.Reward
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("granted_at asc").
		Find(&rewards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	return rewards, nil
}
