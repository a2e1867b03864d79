package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

type User struct {
	gorm.Model
	EmployeeID *int
	Username   string `gorm:"uniqueIndex;not null"`
	Email      string `gorm:"uniqueIndex;not null"`
	Birthday   *time.Time
	Password   string `gorm:"not null" json:"-"` // bcrypt hash
	TokenUsage *UserTokenUsage
	Rewards    []Reward
}

// UserProfile is the public view of a User. Timestamps are pre-formatted and
// nil when unset.
type UserProfile struct {
	ID         uint    `json:"id"`
	EmployeeID *int    `json:"employeeId"`
	Username   string  `json:"username"`
	Email      string  `json:"email"`
	Birthday   *string `json:"birthday"`
	CreatedAt  *string `json:"created_at"`
	UpdatedAt  *string `json:"updated_at"`
	DeletedAt  *string `json:"deleted_at"`
}

func (u *User) Profile() UserProfile {
	p := UserProfile{
		ID:         u.ID,
		EmployeeID: u.EmployeeID,
		Username:   u.Username,
		Email:      u.Email,
		CreatedAt:  formatTime(u.CreatedAt, dateTimeLayout),
		UpdatedAt:  formatTime(u.UpdatedAt, dateTimeLayout),
	}
	if u.Birthday != nil {
		p.Birthday = formatTime(*u.Birthday, dateLayout)
	}
	if u.DeletedAt.Valid {
		p.DeletedAt = formatTime(u.DeletedAt.Time, dateTimeLayout)
	}
	return p
}

// ParseBirthday accepts YYYY-MM-DD. An empty string yields nil.
func ParseBirthday(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatTime(t time.Time, layout string) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Format(layout)
	return &s
}
