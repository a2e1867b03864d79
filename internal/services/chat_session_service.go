package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"etkash_go_backend/internal/metrics"
	"etkash_go_backend/internal/models"

	"github.com/rs/zerolog/log"
)

type chatSessionInfo struct {
	entries      []models.ChatEntry
	startedAt    time.Time
	lastAccessed time.Time
}

// ChatSessionService is the in-process ChatLog. Sessions idle for longer than
// sessionTimeout are treated as gone and removed by CleanupExpiredSessions.
type ChatSessionService struct {
	sessionsMutex  sync.Mutex
	sessions       map[string]*chatSessionInfo
	sessionTimeout time.Duration
	maxEntries     int
	now            func() time.Time
}

var _ ChatLog = (*ChatSessionService)(nil)

type ChatSessionOption func(*ChatSessionService)

func WithSessionClock(now func() time.Time) ChatSessionOption {
	return func(css *ChatSessionService) { css.now = now }
}

// NewChatSessionService creates an in-memory chat log. maxEntries <= 0 keeps
// every entry for the life of the session.
func NewChatSessionService(sessionTimeout time.Duration, maxEntries int, opts ...ChatSessionOption) *ChatSessionService {
	css := &ChatSessionService{
		sessions:       make(map[string]*chatSessionInfo),
		sessionTimeout: sessionTimeout,
		maxEntries:     maxEntries,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(css)
	}
	return css
}

func (css *ChatSessionService) StartSession(_ context.Context, clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return ErrInvalidClientID
	}

	css.sessionsMutex.Lock()
	defer css.sessionsMutex.Unlock()

	now := css.now()
	if session, ok := css.liveSession(clientID, now); ok {
		session.lastAccessed = now
		return nil
	}
	css.sessions[clientID] = &chatSessionInfo{
		startedAt:    now,
		lastAccessed: now,
	}
	metrics.ChatSessionsActive.Set(float64(len(css.sessions)))
	return nil
}

func (css *ChatSessionService) Append(_ context.Context, clientID string, entry models.ChatEntry) error {
	css.sessionsMutex.Lock()
	defer css.sessionsMutex.Unlock()

	now := css.now()
	session, ok := css.liveSession(clientID, now)
	if !ok {
		return ErrSessionNotFound
	}

	session.entries = append(session.entries, entry)
	if css.maxEntries > 0 && len(session.entries) > css.maxEntries {
		trimmed := make([]models.ChatEntry, css.maxEntries)
		copy(trimmed, session.entries[len(session.entries)-css.maxEntries:])
		session.entries = trimmed
	}
	session.lastAccessed = now
	return nil
}

// History returns a copy of the client's entries, oldest first.
func (css *ChatSessionService) History(_ context.Context, clientID string) ([]models.ChatEntry, error) {
	css.sessionsMutex.Lock()
	defer css.sessionsMutex.Unlock()

	now := css.now()
	session, ok := css.liveSession(clientID, now)
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.lastAccessed = now

	history := make([]models.ChatEntry, len(session.entries))
	copy(history, session.entries)
	return history, nil
}

// liveSession must be called with sessionsMutex held.
func (css *ChatSessionService) liveSession(clientID string, now time.Time) (*chatSessionInfo, bool) {
	session, ok := css.sessions[clientID]
	if !ok {
		return nil, false
	}
	if css.sessionTimeout > 0 && now.Sub(session.lastAccessed) > css.sessionTimeout {
		return nil, false
	}
	return session, true
}

// RunCleanup evicts expired sessions every interval until ctx is done.
func (css *ChatSessionService) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := css.CleanupExpiredSessions(); n > 0 {
				log.Info().Int("evicted", n).Msg("Expired chat sessions removed")
			}
		}
	}
}

func (css *ChatSessionService) CleanupExpiredSessions() int {
	css.sessionsMutex.Lock()
	defer css.sessionsMutex.Unlock()

	if css.sessionTimeout <= 0 {
		return 0
	}

	now := css.now()
	evicted := 0
	for clientID, session := range css.sessions {
		if now.Sub(session.lastAccessed) > css.sessionTimeout {
			delete(css.sessions, clientID)
			evicted++
		}
	}
	metrics.ChatSessionsActive.Set(float64(len(css.sessions)))
	return evicted
}

func (css *ChatSessionService) SessionCount() int {
	css.sessionsMutex.Lock()
	defer css.sessionsMutex.Unlock()
	return len(css.sessions)
}
