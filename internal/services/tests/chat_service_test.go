package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"etkash_go_backend/internal/models"
	"etkash_go_backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestChatServiceSendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("Charges and records the turn", func(t *testing.T) {
		ledger := new(MockQuotaLedger)
		chatLog := new(MockChatLog)
		chatService := services.NewChatService(ledger, chatLog)

		usage := &models.UserTokenUsage{UserID: 7, MonthlyTokenLimit: 100, TokensUsed: 12}
		chatLog.On("StartSession", ctx, "client-1").Return(nil).Once()
		ledger.On("Consume", ctx, uint(7), int64(12)).Return(usage, nil).Once()
		chatLog.On("Append", ctx, "client-1", mock.MatchedBy(func(e models.ChatEntry) bool {
			return e.UserID == 7 && e.Role == "user" && e.Content == "hi there" && e.Tokens == 12 && e.ID != ""
		})).Return(nil).Once()

		entry, got, err := chatService.SendMessage(ctx, 7, "client-1", "hi there", 12)
		require.NoError(t, err)
		assert.Equal(t, "client-1", entry.ClientID)
		assert.Equal(t, usage, got)

		ledger.AssertExpectations(t)
		chatLog.AssertExpectations(t)
	})

	t.Run("Estimates tokens when none are given", func(t *testing.T) {
		ledger := new(MockQuotaLedger)
		chatLog := new(MockChatLog)
		chatService := services.NewChatService(ledger, chatLog)

		message := "twelve chars"
		expected := services.EstimateTokens(message)
		chatLog.On("StartSession", ctx, "client-2").Return(nil).Once()
		ledger.On("Consume", ctx, uint(7), expected).Return(&models.UserTokenUsage{TokensUsed: expected}, nil).Once()
		chatLog.On("Append", ctx, "client-2", mock.AnythingOfType("models.ChatEntry")).Return(nil).Once()

		entry, _, err := chatService.SendMessage(ctx, 7, "client-2", message, 0)
		require.NoError(t, err)
		assert.Equal(t, expected, entry.Tokens)
		ledger.AssertExpectations(t)
	})

	t.Run("Rejected charge is not recorded", func(t *testing.T) {
		ledger := new(MockQuotaLedger)
		chatLog := new(MockChatLog)
		chatService := services.NewChatService(ledger, chatLog)

		chatLog.On("StartSession", ctx, "client-3").Return(nil).Once()
		ledger.On("Consume", ctx, uint(7), int64(500)).Return(nil, services.ErrQuotaExceeded).Once()

		entry, usage, err := chatService.SendMessage(ctx, 7, "client-3", "long message", 500)
		assert.ErrorIs(t, err, services.ErrQuotaExceeded)
		assert.Nil(t, entry)
		assert.Nil(t, usage)
		chatLog.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Invalid input never reaches the ledger", func(t *testing.T) {
		ledger := new(MockQuotaLedger)
		chatLog := new(MockChatLog)
		chatService := services.NewChatService(ledger, chatLog)

		_, _, err := chatService.SendMessage(ctx, 7, " ", "hello", 1)
		assert.ErrorIs(t, err, services.ErrInvalidClientID)

		_, _, err = chatService.SendMessage(ctx, 7, "client-4", "hello", -3)
		assert.ErrorIs(t, err, services.ErrInvalidAmount)

		ledger.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Log failure after charge refunds the tokens", func(t *testing.T) {
		ledger := new(MockQuotaLedger)
		chatLog := new(MockChatLog)
		chatService := services.NewChatService(ledger, chatLog)

		logErr := errors.New("redis unavailable")
		periodStart := time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)
		usage := &models.UserTokenUsage{TokensUsed: 5, MonthStartDate: periodStart}
		chatLog.On("StartSession", ctx, "client-5").Return(nil).Once()
		ledger.On("Consume", ctx, uint(7), int64(5)).Return(usage, nil).Once()
		chatLog.On("Append", ctx, "client-5", mock.Anything).Return(logErr).Once()
		ledger.On("Refund", ctx, uint(7), int64(5), periodStart).Return(&models.UserTokenUsage{}, nil).Once()

		entry, got, err := chatService.SendMessage(ctx, 7, "client-5", "hello", 5)
		assert.ErrorIs(t, err, logErr)
		assert.Nil(t, entry)
		assert.Nil(t, got)
		ledger.AssertExpectations(t)
	})

	t.Run("Failed refund still reports the log error", func(t *testing.T) {
		ledger := new(MockQuotaLedger)
		chatLog := new(MockChatLog)
		chatService := services.NewChatService(ledger, chatLog)

		logErr := errors.New("redis unavailable")
		chatLog.On("StartSession", ctx, "client-6").Return(nil).Once()
		ledger.On("Consume", ctx, uint(7), int64(5)).Return(&models.UserTokenUsage{TokensUsed: 5}, nil).Once()
		chatLog.On("Append", ctx, "client-6", mock.Anything).Return(logErr).Once()
		ledger.On("Refund", ctx, uint(7), int64(5), mock.Anything).Return(nil, errors.New("db down")).Once()

		_, _, err := chatService.SendMessage(ctx, 7, "client-6", "hello", 5)
		assert.ErrorIs(t, err, logErr)
		ledger.AssertExpectations(t)
	})
}

func TestChatServiceHistory(t *testing.T) {
	ctx := context.Background()
	chatLog := services.NewChatSessionService(0, 0)
	chatService := services.NewChatService(new(MockQuotaLedger), chatLog)

	_, err := chatService.History(ctx, "client-1")
	assert.ErrorIs(t, err, services.ErrSessionNotFound)

	require.NoError(t, chatService.StartSession(ctx, " client-1 "))
	history, err := chatService.History(ctx, "client-1")
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = chatService.History(ctx, "")
	assert.ErrorIs(t, err, services.ErrInvalidClientID)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, int64(7), services.EstimateTokens(""))
	assert.Equal(t, int64(8), services.EstimateTokens("abcd"))
	assert.Equal(t, int64(32), services.EstimateTokens(string(make([]byte, 100))))
}
