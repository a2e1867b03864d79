package services

import "errors"

var (
	ErrQuotaNotFound   = errors.New("token usage record not found")
	ErrQuotaExceeded   = errors.New("token usage exceeds monthly limit")
	ErrInvalidAmount   = errors.New("token amount must not be negative")
	ErrInvalidLimit    = errors.New("monthly token limit must be positive")
	ErrUserNotFound    = errors.New("user not found")
	ErrConflict        = errors.New("user with this email or username already exists")
	ErrQuotaExists     = errors.New("token usage record already exists")
	ErrSessionNotFound = errors.New("chat session not found")
	ErrInvalidClientID = errors.New("client id is required")
)
