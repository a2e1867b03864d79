package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"etkash_go_backend/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatLogDB keeps chat logs in the relational store next to the quota rows.
// Sessions idle for longer than sessionTimeout are treated as gone.
type ChatLogDB struct {
	db             *gorm.DB
	sessionTimeout time.Duration
	maxEntries     int
	now            func() time.Time
}

var _ ChatLog = (*ChatLogDB)(nil)

func NewChatLogDB(db *gorm.DB, sessionTimeout time.Duration, maxEntries int, opts ...ChatLogDBOption) *ChatLogDB {
	l := &ChatLogDB{
		db:             db,
		sessionTimeout: sessionTimeout,
		maxEntries:     maxEntries,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type ChatLogDBOption func(*ChatLogDB)

func WithChatLogClock(now func() time.Time) ChatLogDBOption {
	return func(l *ChatLogDB) { l.now = now }
}

func (l *ChatLogDB) expired(session *models.ChatSession, now time.Time) bool {
	return l.sessionTimeout > 0 && now.Sub(session.LastAccessed) > l.sessionTimeout
}

// liveSession loads the session and refreshes its access time. Expired
// sessions are reported as missing.
func (l *ChatLogDB) liveSession(tx *gorm.DB, clientID string, now time.Time) (*models.ChatSession, error) {
	var session models.ChatSession
	if err := tx.Where("client_id = ?", clientID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if l.expired(&session, now) {
		return nil, ErrSessionNotFound
	}
	if err := tx.Model(&session).Update("last_accessed", now).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (l *ChatLogDB) StartSession(ctx context.Context, clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return ErrInvalidClientID
	}

	now := l.now()
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.ChatSession
		err := tx.Where("client_id = ?", clientID).First(&session).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "client_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{"last_accessed": now}),
			}).Create(&models.ChatSession{
				ClientID:     clientID,
				StartedAt:    now,
				LastAccessed: now,
			}).Error
		case err != nil:
			return err
		case l.expired(&session, now):
			// Stale log left behind by an unswept session; start over.
			if err := tx.Where("client_id = ?", clientID).Delete(&models.ChatEntry{}).Error; err != nil {
				return err
			}
			return tx.Model(&session).Updates(map[string]interface{}{
				"started_at":    now,
				"last_accessed": now,
			}).Error
		default:
			return tx.Model(&session).Update("last_accessed", now).Error
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start chat session: %w", err)
	}
	return nil
}

func (l *ChatLogDB) Append(ctx context.Context, clientID string, entry models.ChatEntry) error {
	now := l.now()
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := l.liveSession(tx, clientID, now); err != nil {
			return err
		}

		entry.Seq = 0
		entry.ClientID = clientID
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to save chat entry: %w", err)
		}

		if l.maxEntries > 0 {
			keep := tx.Model(&models.ChatEntry{}).
				Select("seq").
				Where("client_id = ?", clientID).
				Order("seq desc").
				Limit(l.maxEntries)
			if err := tx.Where("client_id = ? AND seq NOT IN (?)", clientID, keep).
				Delete(&models.ChatEntry{}).Error; err != nil {
				return fmt.Errorf("failed to trim chat log: %w", err)
			}
		}
		return nil
	})
}

func (l *ChatLogDB) History(ctx context.Context, clientID string) ([]models.ChatEntry, error) {
	now := l.now()
	history := []models.ChatEntry{}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := l.liveSession(tx, clientID, now); err != nil {
			return err
		}
		return tx.Where("client_id = ?", clientID).Order("seq asc").Find(&history).Error
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read chat history: %w", err)
	}
	return history, nil
}

// CleanupExpiredSessions deletes idle sessions and their entries.
func (l *ChatLogDB) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	if l.sessionTimeout <= 0 {
		return 0, nil
	}

	cutoff := l.now().Add(-l.sessionTimeout)
	var evicted int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Model(&models.ChatSession{}).Select("client_id").Where("last_accessed < ?", cutoff)
		if err := tx.Where("client_id IN (?)", stale).Delete(&models.ChatEntry{}).Error; err != nil {
			return err
		}
		res := tx.Where("last_accessed < ?", cutoff).Delete(&models.ChatSession{})
		if res.Error != nil {
			return res.Error
		}
		evicted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clean up chat sessions: %w", err)
	}
	return evicted, nil
}

// RunCleanup evicts expired sessions every interval until ctx is done.
func (l *ChatLogDB) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.CleanupExpiredSessions(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Chat session cleanup failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("evicted", n).Msg("Expired chat sessions removed")
			}
		}
	}
}
