package wsocket

import (
	"context"
	"net/http"
	"time"

	"etkash_go_backend/internal/models"
	"etkash_go_backend/internal/services"
	"etkash_go_backend/internal/utils/broker"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeWait = 10 * time.Second

type Handler struct {
	ledger        services.QuotaLedger
	messageBroker *broker.Broker
	upgrader      websocket.Upgrader
	pingInterval  time.Duration
}

// Message is a server-to-client frame on the quota stream.
type Message struct {
	Type       string                 `json:"type"` // "token_usage", "error"
	TokenUsage *models.TokenUsageView `json:"token_usage,omitempty"`
	Content    string                 `json:"content,omitempty"`
}

func NewHandler(ledger services.QuotaLedger, messageBroker *broker.Broker, upgrader websocket.Upgrader, pingInterval time.Duration) *Handler {
	return &Handler{
		ledger:        ledger,
		messageBroker: messageBroker,
		upgrader:      upgrader,
		pingInterval:  pingInterval,
	}
}

// HandleQuotaStream upgrades the connection and pushes the caller's quota: the
// current snapshot first, then one frame per successful charge, until the
// client disconnects.
func (h *Handler) HandleQuotaStream(w http.ResponseWriter, r *http.Request, userID uint) {
	log := zerolog.Ctx(r.Context()).With().Uint("userID", userID).Logger()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	topic := services.QuotaUpdateTopic(userID)
	updates := h.messageBroker.Subscribe(topic)
	defer h.messageBroker.Unsubscribe(topic, updates)

	// Subscribe before the snapshot so no charge falls between the two.
	usage, err := h.ledger.GetQuota(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load quota for stream")
		h.write(conn, Message{Type: "error", Content: "Token usage record not found"})
		return
	}
	if err := h.writeUsage(conn, usage); err != nil {
		return
	}
	last := usage

	// The reader only drains control frames and notices disconnects.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	log.Debug().Msg("Quota stream opened")
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Quota stream closed")
			return
		case msg, ok := <-updates:
			if !ok {
				return
			}
			usage, ok := msg.(*models.UserTokenUsage)
			if !ok || olderThan(usage, last) {
				continue
			}
			if err := h.writeUsage(conn, usage); err != nil {
				log.Debug().Err(err).Msg("Error sending quota update")
				return
			}
			last = usage
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Msg("Ping failed")
				return
			}
		}
	}
}

// olderThan reports whether next predates cur. Snapshots are published after
// commit and may arrive out of order.
func olderThan(next, cur *models.UserTokenUsage) bool {
	return next.Version < cur.Version
}

func (h *Handler) writeUsage(conn *websocket.Conn, usage *models.UserTokenUsage) error {
	view := usage.View()
	return h.write(conn, Message{Type: "token_usage", TokenUsage: &view})
}

func (h *Handler) write(conn *websocket.Conn, msg Message) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
