package models

import "time"

// UserTokenUsage is the per-user monthly quota row. MonthEndDate is exclusive;
// Version grows by one on every write to the row.
type UserTokenUsage struct {
	ID                uint      `gorm:"primaryKey"`
	UserID            uint      `gorm:"uniqueIndex;not null"`
	MonthlyTokenLimit int64     `gorm:"not null;default:1000"`
	TokensUsed        int64     `gorm:"not null;default:0"`
	MonthStartDate    time.Time `gorm:"not null"`
	MonthEndDate      time.Time `gorm:"not null"`
	Version           int64     `gorm:"not null;default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (UserTokenUsage) TableName() string {
	return "user_token_usage"
}

func (u *UserTokenUsage) Remaining() int64 {
	if u.TokensUsed >= u.MonthlyTokenLimit {
		return 0
	}
	return u.MonthlyTokenLimit - u.TokensUsed
}

// TokenUsageView is the JSON shape returned by the token-usage endpoints.
type TokenUsageView struct {
	ID                uint    `json:"id"`
	UserID            uint    `json:"user_id"`
	MonthlyTokenLimit int64   `json:"monthly_token_limit"`
	TokensUsed        int64   `json:"tokens_used"`
	TokensRemaining   int64   `json:"tokens_remaining"`
	MonthStartDate    *string `json:"month_start_date"`
	MonthEndDate      *string `json:"month_end_date"`
	CreatedAt         *string `json:"created_at"`
	UpdatedAt         *string `json:"updated_at"`
}

func (u *UserTokenUsage) View() TokenUsageView {
	return TokenUsageView{
		ID:                u.ID,
		UserID:            u.UserID,
		MonthlyTokenLimit: u.MonthlyTokenLimit,
		TokensUsed:        u.TokensUsed,
		TokensRemaining:   u.Remaining(),
		MonthStartDate:    formatTime(u.MonthStartDate, dateLayout),
		MonthEndDate:      formatTime(u.MonthEndDate, dateLayout),
		CreatedAt:         formatTime(u.CreatedAt, dateTimeLayout),
		UpdatedAt:         formatTime(u.UpdatedAt, dateTimeLayout),
	}
}
