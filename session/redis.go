package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in redis so several server processes share them.
//
// Layout under prefix p:
//
//	p:sessions                       zset of session ids scored by creation time
//	p:conversations                  set of conversation ids
//	p:session:<id>                   hash of session fields and counters
//	p:session:<id>:conversations     list of conversation ids
//	p:conversation:<id>              hash of conversation fields and counters
//	p:conversation:<id>:messages     list of JSON encoded exchanges
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, prefix string, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	if prefix == "" {
		prefix = "chat"
	}
	return &RedisStore{client: client, prefix: prefix, now: now}
}

func (r *RedisStore) sessionsKey() string      { return r.prefix + ":sessions" }
func (r *RedisStore) conversationsKey() string { return r.prefix + ":conversations" }
func (r *RedisStore) sessionKey(id string) string {
	return r.prefix + ":session:" + id
}
func (r *RedisStore) sessionConversationsKey(id string) string {
	return r.sessionKey(id) + ":conversations"
}
func (r *RedisStore) conversationKey(id string) string {
	return r.prefix + ":conversation:" + id
}
func (r *RedisStore) messagesKey(id string) string {
	return r.conversationKey(id) + ":messages"
}

func (r *RedisStore) InitSession(ctx context.Context, sessionID, startTime string) (Session, error) {
	key := r.sessionKey(sessionID)
	created, err := r.client.HSetNX(ctx, key, "session_id", sessionID).Result()
	if err != nil {
		return Session{}, fmt.Errorf("init session: %w", err)
	}
	if created {
		now := r.now().UTC()
		_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"start_time", startTime,
				"created_at", now.Format(time.RFC3339Nano),
				"conversation_count", 0,
				"message_count", 0,
			)
			pipe.ZAdd(ctx, r.sessionsKey(), redis.Z{Score: float64(now.UnixNano()), Member: sessionID})
			return nil
		})
		if err != nil {
			return Session{}, fmt.Errorf("init session: %w", err)
		}
	}
	return r.Session(ctx, sessionID)
}

func (r *RedisStore) InitConversation(ctx context.Context, conversationID, sessionID, startTime string) (Conversation, error) {
	key := r.conversationKey(conversationID)
	created, err := r.client.HSetNX(ctx, key, "conversation_id", conversationID).Result()
	if err != nil {
		return Conversation{}, fmt.Errorf("init conversation: %w", err)
	}
	if created {
		sessionExists, err := r.client.Exists(ctx, r.sessionKey(sessionID)).Result()
		if err != nil {
			return Conversation{}, fmt.Errorf("init conversation: %w", err)
		}
		_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"session_id", sessionID,
				"start_time", startTime,
				"created_at", r.now().UTC().Format(time.RFC3339Nano),
				"message_count", 0,
			)
			pipe.SAdd(ctx, r.conversationsKey(), conversationID)
			if sessionExists == 1 {
				pipe.HIncrBy(ctx, r.sessionKey(sessionID), "conversation_count", 1)
				pipe.RPush(ctx, r.sessionConversationsKey(sessionID), conversationID)
			}
			return nil
		})
		if err != nil {
			return Conversation{}, fmt.Errorf("init conversation: %w", err)
		}
	}
	return r.Conversation(ctx, conversationID)
}

func (r *RedisStore) AddExchange(ctx context.Context, conversationID, sessionID, userMessage, reply string) error {
	exists, err := r.client.Exists(ctx, r.conversationKey(conversationID)).Result()
	if err != nil {
		return fmt.Errorf("add exchange: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	sessionExists, err := r.client.Exists(ctx, r.sessionKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("add exchange: %w", err)
	}

	payload, err := json.Marshal(Exchange{
		Timestamp:   r.now().UTC(),
		UserMessage: userMessage,
		AIResponse:  reply,
	})
	if err != nil {
		return fmt.Errorf("encode exchange: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, r.messagesKey(conversationID), payload)
		pipe.HIncrBy(ctx, r.conversationKey(conversationID), "message_count", 1)
		if sessionExists == 1 {
			pipe.HIncrBy(ctx, r.sessionKey(sessionID), "message_count", 1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("add exchange: %w", err)
	}
	return nil
}

func (r *RedisStore) Session(ctx context.Context, sessionID string) (Session, error) {
	fields, err := r.client.HGetAll(ctx, r.sessionKey(sessionID)).Result()
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	if len(fields) == 0 {
		return Session{}, ErrNotFound
	}
	conversations, err := r.client.LRange(ctx, r.sessionConversationsKey(sessionID), 0, -1).Result()
	if err != nil {
		return Session{}, fmt.Errorf("get session conversations: %w", err)
	}

	return Session{
		SessionID:         fields["session_id"],
		StartTime:         fields["start_time"],
		CreatedAt:         parseTime(fields["created_at"]),
		ConversationCount: atoi(fields["conversation_count"]),
		MessageCount:      atoi(fields["message_count"]),
		Conversations:     conversations,
	}, nil
}

func (r *RedisStore) Conversation(ctx context.Context, conversationID string) (Conversation, error) {
	fields, err := r.client.HGetAll(ctx, r.conversationKey(conversationID)).Result()
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	if len(fields) == 0 {
		return Conversation{}, ErrNotFound
	}
	messages, err := r.exchanges(ctx, conversationID, 0, -1)
	if err != nil {
		return Conversation{}, err
	}

	return Conversation{
		ConversationID: fields["conversation_id"],
		SessionID:      fields["session_id"],
		StartTime:      fields["start_time"],
		CreatedAt:      parseTime(fields["created_at"]),
		Messages:       messages,
		MessageCount:   atoi(fields["message_count"]),
	}, nil
}

func (r *RedisStore) RecentExchanges(ctx context.Context, conversationID string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		return []Exchange{}, nil
	}
	return r.exchanges(ctx, conversationID, int64(-limit), -1)
}

func (r *RedisStore) exchanges(ctx context.Context, conversationID string, start, stop int64) ([]Exchange, error) {
	raw, err := r.client.LRange(ctx, r.messagesKey(conversationID), start, stop).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get exchanges: %w", err)
	}
	out := make([]Exchange, 0, len(raw))
	for _, item := range raw {
		var e Exchange
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode exchange: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *RedisStore) Stats(ctx context.Context) (Stats, error) {
	sessions, err := r.client.ZRange(ctx, r.sessionsKey(), 0, -1).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("list sessions: %w", err)
	}
	conversations, err := r.client.SCard(ctx, r.conversationsKey()).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("count conversations: %w", err)
	}

	stats := Stats{TotalSessions: len(sessions), TotalConversations: int(conversations)}
	for _, id := range sessions {
		n, err := r.client.HGet(ctx, r.sessionKey(id), "message_count").Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return Stats{}, fmt.Errorf("count messages: %w", err)
		}
		stats.TotalMessages += n
	}
	return stats, nil
}

func (r *RedisStore) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := r.now().Add(-maxAge).UnixNano()
	expired, err := r.client.ZRangeByScore(ctx, r.sessionsKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list expired sessions: %w", err)
	}

	for _, sessionID := range expired {
		conversations, err := r.client.LRange(ctx, r.sessionConversationsKey(sessionID), 0, -1).Result()
		if err != nil {
			return 0, fmt.Errorf("list session conversations: %w", err)
		}

		_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, convID := range conversations {
				pipe.Del(ctx, r.conversationKey(convID), r.messagesKey(convID))
				pipe.SRem(ctx, r.conversationsKey(), convID)
			}
			pipe.Del(ctx, r.sessionKey(sessionID), r.sessionConversationsKey(sessionID))
			pipe.ZRem(ctx, r.sessionsKey(), sessionID)
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("remove session %s: %w", sessionID, err)
		}
	}
	return len(expired), nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

func atoi(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}
