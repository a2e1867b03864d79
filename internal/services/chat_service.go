package services

import (
	"context"
	"strings"
	"time"

	"etkash_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ChatService meters chat turns against the user's quota and records them in
// the chat log.
type ChatService struct {
	ledger  QuotaLedger
	chatLog ChatLog
	now     func() time.Time
}

func NewChatService(ledger QuotaLedger, chatLog ChatLog) *ChatService {
	return &ChatService{
		ledger:  ledger,
		chatLog: chatLog,
		now:     time.Now,
	}
}

func (s *ChatService) StartSession(ctx context.Context, clientID string) error {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return ErrInvalidClientID
	}
	return s.chatLog.StartSession(ctx, clientID)
}

func (s *ChatService) History(ctx context.Context, clientID string) ([]models.ChatEntry, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, ErrInvalidClientID
	}
	return s.chatLog.History(ctx, clientID)
}

// SendMessage charges tokens for one user turn and appends it to the client's
// log, starting the session if needed. tokens == 0 means "estimate from the
// message". Nothing is logged when the charge is rejected, and a turn the log
// fails to store is refunded.
func (s *ChatService) SendMessage(ctx context.Context, userID uint, clientID, message string, tokens int64) (*models.ChatEntry, *models.UserTokenUsage, error) {
	log := zerolog.Ctx(ctx)
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, nil, ErrInvalidClientID
	}
	if tokens < 0 {
		return nil, nil, ErrInvalidAmount
	}
	if tokens == 0 {
		tokens = EstimateTokens(message)
	}

	if err := s.chatLog.StartSession(ctx, clientID); err != nil {
		return nil, nil, err
	}

	usage, err := s.ledger.Consume(ctx, userID, tokens)
	if err != nil {
		return nil, nil, err
	}

	entry := models.ChatEntry{
		ID:        uuid.New().String(),
		ClientID:  clientID,
		UserID:    userID,
		Role:      "user",
		Content:   message,
		Tokens:    tokens,
		Timestamp: s.now().UTC(),
	}
	if err := s.chatLog.Append(ctx, clientID, entry); err != nil {
		log.Error().Err(err).Str("clientID", clientID).Uint("userID", userID).Msg("Failed to record chat turn")
		if _, refundErr := s.ledger.Refund(ctx, userID, tokens, usage.MonthStartDate); refundErr != nil {
			log.Error().Err(refundErr).Uint("userID", userID).Int64("tokens", tokens).Msg("Failed to refund unrecorded chat turn")
		}
		return nil, nil, err
	}
	return &entry, usage, nil
}
