package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"etkash_go_backend/internal/metrics"
	"etkash_go_backend/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuotaUpdateTopic is the broker topic carrying a user's quota snapshots.
func QuotaUpdateTopic(userID uint) string {
	return "quota_update_" + strconv.FormatUint(uint64(userID), 10)
}

// LedgerOption configures a QuotaLedgerDB.
type LedgerOption func(*QuotaLedgerDB)

// WithClock replaces the ledger's time source; now must return UTC times.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *QuotaLedgerDB) { l.now = now }
}

// WithPublisher makes Consume publish the updated row on QuotaUpdateTopic.
func WithPublisher(p Publisher) LedgerOption {
	return func(l *QuotaLedgerDB) { l.publisher = p }
}

// QuotaLedgerDB keeps quota rows in the relational store. Consume serializes
// writers per user with a conditional UPDATE, so no in-process locking is needed
// and several API instances may share one database.
type QuotaLedgerDB struct {
	db        *gorm.DB
	now       func() time.Time
	publisher Publisher
}

var _ QuotaLedger = (*QuotaLedgerDB)(nil)

func NewQuotaLedgerDB(db *gorm.DB, opts ...LedgerOption) *QuotaLedgerDB {
	l := &QuotaLedgerDB{
		db: db,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// GetQuota returns the user's quota as seen at the current time: a row whose
// period has ended is reported as a fresh window with no usage. The stored row
// is not modified.
func (l *QuotaLedgerDB) GetQuota(ctx context.Context, userID uint) (*models.UserTokenUsage, error) {
	var usage models.UserTokenUsage
	err := l.db.WithContext(ctx).Where("user_id = ?", userID).First(&usage).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuotaNotFound
		}
		return nil, fmt.Errorf("failed to get token usage: %w", err)
	}
	rollForward(&usage, l.now())
	return &usage, nil
}

func (l *QuotaLedgerDB) Consume(ctx context.Context, userID uint, amount int64) (*models.UserTokenUsage, error) {
	log := zerolog.Ctx(ctx)
	if amount < 0 {
		return nil, ErrInvalidAmount
	}

	now := l.now()
	var usage models.UserTokenUsage
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).First(&usage).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQuotaNotFound
			}
			return err
		}
		if amount > usage.MonthlyTokenLimit {
			return ErrQuotaExceeded
		}

		if periodExpired(&usage, now) {
			start, end := nextPeriod(usage.MonthStartDate, usage.MonthEndDate, now)
			// Re-checked in the WHERE clause: a concurrent writer may have
			// rolled the period already, in which case this is a no-op.
			res := tx.Model(&models.UserTokenUsage{}).
				Where("user_id = ? AND month_end_date <= ?", userID, now).
				Updates(map[string]interface{}{
					"tokens_used":      0,
					"month_start_date": start,
					"month_end_date":   end,
					"version":          gorm.Expr("version + 1"),
					"updated_at":       now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				metrics.QuotaRolloversTotal.Inc()
				log.Info().Uint("userID", userID).Time("periodStart", start).Time("periodEnd", end).Msg("Quota period rolled over")
			}
		}

		// Compared as remaining allowance so a huge amount cannot overflow bigint.
		res := tx.Model(&models.UserTokenUsage{}).
			Where("user_id = ? AND monthly_token_limit - tokens_used >= ?", userID, amount).
			Updates(map[string]interface{}{
				"tokens_used": gorm.Expr("tokens_used + ?", amount),
				"version":     gorm.Expr("version + 1"),
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrQuotaExceeded
		}

		return tx.Where("user_id = ?", userID).First(&usage).Error
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrQuotaNotFound):
		metrics.QuotaConsumeTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
		return nil, err
	case errors.Is(err, ErrQuotaExceeded):
		metrics.QuotaConsumeTotal.WithLabelValues(metrics.OutcomeExceeded).Inc()
		log.Info().Uint("userID", userID).Int64("amount", amount).Msg("Token quota exceeded")
		return nil, err
	default:
		metrics.QuotaConsumeTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("failed to update token usage: %w", err)
	}

	metrics.QuotaConsumeTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	metrics.TokensConsumedTotal.Add(float64(amount))
	log.Debug().Uint("userID", userID).Int64("amount", amount).Int64("tokensUsed", usage.TokensUsed).Msg("Tokens consumed")

	l.publish(&usage)
	return &usage, nil
}

// Refund gives back tokens charged in the period starting at periodStart. It
// changes nothing once that period has rolled over, or when fewer than amount
// tokens are in use; the current row is returned either way.
func (l *QuotaLedgerDB) Refund(ctx context.Context, userID uint, amount int64, periodStart time.Time) (*models.UserTokenUsage, error) {
	log := zerolog.Ctx(ctx)
	if amount < 0 {
		return nil, ErrInvalidAmount
	}

	var (
		usage    models.UserTokenUsage
		refunded bool
	)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.UserTokenUsage{}).
			Where("user_id = ? AND month_start_date = ? AND tokens_used >= ?", userID, periodStart, amount).
			Updates(map[string]interface{}{
				"tokens_used": gorm.Expr("tokens_used - ?", amount),
				"version":     gorm.Expr("version + 1"),
				"updated_at":  l.now(),
			})
		if res.Error != nil {
			return res.Error
		}
		refunded = res.RowsAffected > 0

		if err := tx.Where("user_id = ?", userID).First(&usage).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQuotaNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrQuotaNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to refund token usage: %w", err)
	}

	if !refunded {
		log.Warn().Uint("userID", userID).Int64("amount", amount).Msg("Refund skipped, period already closed")
		return &usage, nil
	}
	metrics.TokensRefundedTotal.Add(float64(amount))
	log.Info().Uint("userID", userID).Int64("amount", amount).Int64("tokensUsed", usage.TokensUsed).Msg("Tokens refunded")
	l.publish(&usage)
	return &usage, nil
}

func (l *QuotaLedgerDB) publish(usage *models.UserTokenUsage) {
	if l.publisher == nil {
		return
	}
	snapshot := *usage
	l.publisher.Publish(QuotaUpdateTopic(usage.UserID), &snapshot)
}

// CreateQuota opens the first monthly period for a user. A user holds at most
// one quota row; a second call fails with ErrQuotaExists.
func (l *QuotaLedgerDB) CreateQuota(ctx context.Context, userID uint, monthlyLimit int64) (*models.UserTokenUsage, error) {
	if monthlyLimit <= 0 {
		return nil, ErrInvalidLimit
	}

	now := l.now()
	usage := &models.UserTokenUsage{
		UserID:            userID,
		MonthlyTokenLimit: monthlyLimit,
		TokensUsed:        0,
		MonthStartDate:    now,
		MonthEndDate:      now.AddDate(0, 1, 0),
	}

	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(usage)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to create token usage: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrQuotaExists
	}
	return usage, nil
}
