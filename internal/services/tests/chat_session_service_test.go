package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"etkash_go_backend/internal/models"
	"etkash_go_backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatSessionService(t *testing.T) {
	ctx := context.Background()

	t.Run("Start is idempotent", func(t *testing.T) {
		chatLog := services.NewChatSessionService(10*time.Minute, 0)

		require.NoError(t, chatLog.StartSession(ctx, "client-1"))
		require.NoError(t, chatLog.Append(ctx, "client-1", models.ChatEntry{Content: "hello"}))
		require.NoError(t, chatLog.StartSession(ctx, "client-1"))

		history, err := chatLog.History(ctx, "client-1")
		require.NoError(t, err)
		assert.Len(t, history, 1)
		assert.Equal(t, 1, chatLog.SessionCount())
	})

	t.Run("Empty client id is rejected", func(t *testing.T) {
		chatLog := services.NewChatSessionService(10*time.Minute, 0)
		assert.ErrorIs(t, chatLog.StartSession(ctx, "  "), services.ErrInvalidClientID)
	})

	t.Run("Unknown session", func(t *testing.T) {
		chatLog := services.NewChatSessionService(10*time.Minute, 0)

		_, err := chatLog.History(ctx, "missing")
		assert.ErrorIs(t, err, services.ErrSessionNotFound)
		assert.ErrorIs(t, chatLog.Append(ctx, "missing", models.ChatEntry{}), services.ErrSessionNotFound)
	})

	t.Run("Sessions are isolated per client", func(t *testing.T) {
		chatLog := services.NewChatSessionService(10*time.Minute, 0)
		require.NoError(t, chatLog.StartSession(ctx, "a"))
		require.NoError(t, chatLog.StartSession(ctx, "b"))
		require.NoError(t, chatLog.Append(ctx, "a", models.ChatEntry{Content: "for a"}))

		historyA, err := chatLog.History(ctx, "a")
		require.NoError(t, err)
		historyB, err := chatLog.History(ctx, "b")
		require.NoError(t, err)
		assert.Len(t, historyA, 1)
		assert.Empty(t, historyB)
	})

	t.Run("History is a copy", func(t *testing.T) {
		chatLog := services.NewChatSessionService(10*time.Minute, 0)
		require.NoError(t, chatLog.StartSession(ctx, "c"))
		require.NoError(t, chatLog.Append(ctx, "c", models.ChatEntry{Content: "original"}))

		history, err := chatLog.History(ctx, "c")
		require.NoError(t, err)
		history[0].Content = "changed"

		again, err := chatLog.History(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, "original", again[0].Content)
	})

	t.Run("Oldest entries are dropped past the cap", func(t *testing.T) {
		chatLog := services.NewChatSessionService(10*time.Minute, 3)
		require.NoError(t, chatLog.StartSession(ctx, "d"))
		for i := 0; i < 5; i++ {
			require.NoError(t, chatLog.Append(ctx, "d", models.ChatEntry{Content: fmt.Sprintf("msg-%d", i)}))
		}

		history, err := chatLog.History(ctx, "d")
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, "msg-2", history[0].Content)
		assert.Equal(t, "msg-4", history[2].Content)
	})

	t.Run("Concurrent appends are all kept", func(t *testing.T) {
		chatLog := services.NewChatSessionService(10*time.Minute, 0)
		require.NoError(t, chatLog.StartSession(ctx, "e"))

		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, chatLog.Append(ctx, "e", models.ChatEntry{Content: fmt.Sprint(i)}))
			}(i)
		}
		wg.Wait()

		history, err := chatLog.History(ctx, "e")
		require.NoError(t, err)
		assert.Len(t, history, 100)
	})
}

func TestChatSessionExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	chatLog := services.NewChatSessionService(30*time.Minute, 0, services.WithSessionClock(clock.Now))

	require.NoError(t, chatLog.StartSession(ctx, "idle"))
	require.NoError(t, chatLog.StartSession(ctx, "busy"))

	clock.Set(clock.Now().Add(20 * time.Minute))
	_, err := chatLog.History(ctx, "busy")
	require.NoError(t, err)

	clock.Set(clock.Now().Add(20 * time.Minute))

	_, err = chatLog.History(ctx, "idle")
	assert.ErrorIs(t, err, services.ErrSessionNotFound)
	_, err = chatLog.History(ctx, "busy")
	assert.NoError(t, err)

	assert.Equal(t, 1, chatLog.CleanupExpiredSessions())
	assert.Equal(t, 1, chatLog.SessionCount())

	require.NoError(t, chatLog.StartSession(ctx, "idle"))
	history, err := chatLog.History(ctx, "idle")
	require.NoError(t, err)
	assert.Empty(t, history)
}
