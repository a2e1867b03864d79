package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"etkash_go_backend/internal/models"

	goredis "github.com/redis/go-redis/v9"
)

// RedisChatLog keeps chat logs in Redis so they survive restarts and are shared
// between API instances. Each session is a marker key plus a list of JSON
// entries; both expire after ttl of inactivity.
type RedisChatLog struct {
	client     goredis.Cmdable
	keyPrefix  string
	ttl        time.Duration
	maxEntries int
}

var _ ChatLog = (*RedisChatLog)(nil)

type RedisChatLogOption func(*RedisChatLog)

// WithKeyPrefix sets the Redis key prefix (default "etkash:chat:").
func WithKeyPrefix(prefix string) RedisChatLogOption {
	return func(r *RedisChatLog) { r.keyPrefix = prefix }
}

func NewRedisChatLog(client goredis.Cmdable, ttl time.Duration, maxEntries int, opts ...RedisChatLogOption) *RedisChatLog {
	r := &RedisChatLog{
		client:     client,
		keyPrefix:  "etkash:chat:",
		ttl:        ttl,
		maxEntries: maxEntries,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisChatLog) sessionKey(clientID string) string {
	return r.keyPrefix + clientID
}

func (r *RedisChatLog) entriesKey(clientID string) string {
	return r.keyPrefix + clientID + ":entries"
}

// appendScript pushes an entry only when the session marker exists.
// KEYS[1] = session marker
// KEYS[2] = entries list
// ARGV[1] = encoded entry
// ARGV[2] = ttl (milliseconds)
// ARGV[3] = max entries (0 = unbounded)
//
// Returns 1 on append, 0 when the session does not exist.
var appendScript = goredis.NewScript(`
local session_key = KEYS[1]
local entries_key = KEYS[2]
local ttl = tonumber(ARGV[2])
local max_entries = tonumber(ARGV[3])

if redis.call("EXISTS", session_key) == 0 then
    return 0
end

redis.call("RPUSH", entries_key, ARGV[1])
if max_entries > 0 then
    redis.call("LTRIM", entries_key, -max_entries, -1)
end
redis.call("PEXPIRE", session_key, ttl)
redis.call("PEXPIRE", entries_key, ttl)
return 1
`)

func (r *RedisChatLog) StartSession(ctx context.Context, clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return ErrInvalidClientID
	}
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.SetNX(ctx, r.sessionKey(clientID), time.Now().UTC().Format(time.RFC3339), r.ttl)
		pipe.Expire(ctx, r.sessionKey(clientID), r.ttl)
		pipe.Expire(ctx, r.entriesKey(clientID), r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to start chat session: %w", err)
	}
	return nil
}

func (r *RedisChatLog) Append(ctx context.Context, clientID string, entry models.ChatEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode chat entry: %w", err)
	}

	appended, err := appendScript.Run(ctx, r.client,
		[]string{r.sessionKey(clientID), r.entriesKey(clientID)},
		string(data), r.ttl.Milliseconds(), r.maxEntries,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to append chat entry: %w", err)
	}
	if appended == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *RedisChatLog) History(ctx context.Context, clientID string) ([]models.ChatEntry, error) {
	exists, err := r.client.Exists(ctx, r.sessionKey(clientID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check chat session: %w", err)
	}
	if exists == 0 {
		return nil, ErrSessionNotFound
	}

	raw, err := r.client.LRange(ctx, r.entriesKey(clientID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read chat history: %w", err)
	}

	history := make([]models.ChatEntry, 0, len(raw))
	for _, item := range raw {
		var entry models.ChatEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode chat entry: %w", err)
		}
		history = append(history, entry)
	}
	return history, nil
}
