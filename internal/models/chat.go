package models

import (
	"time"
)

// ChatSession marks a client's chat log as open in the relational store.
type ChatSession struct {
	ID           uint      `gorm:"primaryKey"`
	ClientID     string    `gorm:"uniqueIndex;not null"`
	StartedAt    time.Time `gorm:"not null"`
	LastAccessed time.Time `gorm:"index;not null"`
}

// ChatEntry is one turn in a client's chat log. Seq orders entries when they
// are kept in the relational store.
type ChatEntry struct {
	Seq       uint      `gorm:"primaryKey" json:"-"`
	ID        string    `gorm:"uniqueIndex;not null" json:"id"`
	ClientID  string    `gorm:"index;not null" json:"client_id"`
	UserID    uint      `json:"user_id,omitempty"`
	Role      string    `json:"role"` // "user", "assistant", "system"
	Content   string    `json:"content"`
	Tokens    int64     `json:"tokens"`
	Timestamp time.Time `json:"timestamp"`
}
