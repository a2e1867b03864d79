package models

import "time"

type Reward struct {
	ID                uint   `gorm:"primaryKey"`
	UserID            uint   `gorm:"index;not null"`
	RewardType        string `gorm:"not null"` // e.g. "badge", "coupon"
	RewardDescription string
	GrantedAt         time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type RewardView struct {
	ID                uint    `json:"id"`
	RewardType        string  `json:"reward_type"`
	RewardDescription string  `json:"reward_description"`
	GrantedAt         *string `json:"granted_at"`
}

func (r *Reward) View() RewardView {
	return RewardView{
		ID:                r.ID,
		RewardType:        r.RewardType,
		RewardDescription: r.RewardDescription,
		GrantedAt:         formatTime(r.GrantedAt, dateTimeLayout),
	}
}
