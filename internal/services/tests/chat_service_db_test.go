package services_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"etkash_go_backend/internal/models"
	"etkash_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(content string) models.ChatEntry {
	return models.ChatEntry{ID: uuid.New().String(), Role: "user", Content: content}
}

func TestChatLogDB(t *testing.T) {
	ctx := context.Background()

	t.Run("Round trip in order", func(t *testing.T) {
		chatLog := services.NewChatLogDB(newTestDB(t), time.Hour, 0)

		require.NoError(t, chatLog.StartSession(ctx, "client-1"))
		require.NoError(t, chatLog.StartSession(ctx, "client-1"))
		for i := 0; i < 3; i++ {
			require.NoError(t, chatLog.Append(ctx, "client-1", entry(fmt.Sprintf("msg-%d", i))))
		}

		history, err := chatLog.History(ctx, "client-1")
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, "msg-0", history[0].Content)
		assert.Equal(t, "msg-2", history[2].Content)
		assert.Equal(t, "client-1", history[1].ClientID)
	})

	t.Run("Unknown session", func(t *testing.T) {
		chatLog := services.NewChatLogDB(newTestDB(t), time.Hour, 0)

		_, err := chatLog.History(ctx, "missing")
		assert.ErrorIs(t, err, services.ErrSessionNotFound)
		assert.ErrorIs(t, chatLog.Append(ctx, "missing", entry("x")), services.ErrSessionNotFound)
		assert.ErrorIs(t, chatLog.StartSession(ctx, ""), services.ErrInvalidClientID)
	})

	t.Run("Empty history is an empty list", func(t *testing.T) {
		chatLog := services.NewChatLogDB(newTestDB(t), time.Hour, 0)
		require.NoError(t, chatLog.StartSession(ctx, "quiet"))

		history, err := chatLog.History(ctx, "quiet")
		require.NoError(t, err)
		assert.NotNil(t, history)
		assert.Empty(t, history)
	})

	t.Run("Oldest entries are dropped past the cap", func(t *testing.T) {
		chatLog := services.NewChatLogDB(newTestDB(t), time.Hour, 2)
		require.NoError(t, chatLog.StartSession(ctx, "capped"))
		for i := 0; i < 4; i++ {
			require.NoError(t, chatLog.Append(ctx, "capped", entry(fmt.Sprintf("msg-%d", i))))
		}

		history, err := chatLog.History(ctx, "capped")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "msg-2", history[0].Content)
		assert.Equal(t, "msg-3", history[1].Content)
	})
}

func TestChatLogDBExpiry(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	clock := newClock()
	chatLog := services.NewChatLogDB(db, 30*time.Minute, 0, services.WithChatLogClock(clock.Now))

	require.NoError(t, chatLog.StartSession(ctx, "idle"))
	require.NoError(t, chatLog.Append(ctx, "idle", entry("old")))
	require.NoError(t, chatLog.StartSession(ctx, "busy"))

	clock.Set(clock.Now().Add(20 * time.Minute))
	_, err := chatLog.History(ctx, "busy")
	require.NoError(t, err)
	clock.Set(clock.Now().Add(20 * time.Minute))

	_, err = chatLog.History(ctx, "idle")
	assert.ErrorIs(t, err, services.ErrSessionNotFound)

	t.Run("Restarting an expired session clears its log", func(t *testing.T) {
		require.NoError(t, chatLog.StartSession(ctx, "idle"))
		history, err := chatLog.History(ctx, "idle")
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("Cleanup removes idle sessions and their entries", func(t *testing.T) {
		require.NoError(t, chatLog.Append(ctx, "idle", entry("new")))
		clock.Set(clock.Now().Add(time.Hour))

		evicted, err := chatLog.CleanupExpiredSessions(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), evicted)

		var sessions, entries int64
		require.NoError(t, db.Model(&models.ChatSession{}).Count(&sessions).Error)
		require.NoError(t, db.Model(&models.ChatEntry{}).Count(&entries).Error)
		assert.Equal(t, int64(0), sessions)
		assert.Equal(t, int64(0), entries)
	})
}
