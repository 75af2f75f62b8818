package session

import (
	"context"
	"time"
)

// Store keeps session state between chat requests.
// Init calls are idempotent; the first InitConversation for an id counts
// towards its session.
type Store interface {
	InitSession(ctx context.Context, sessionID, startTime string) (Session, error)
	InitConversation(ctx context.Context, conversationID, sessionID, startTime string) (Conversation, error)
	AddExchange(ctx context.Context, conversationID, sessionID, userMessage, reply string) error
	Session(ctx context.Context, sessionID string) (Session, error)
	Conversation(ctx context.Context, conversationID string) (Conversation, error)
	RecentExchanges(ctx context.Context, conversationID string, limit int) ([]Exchange, error)
	Stats(ctx context.Context) (Stats, error)
	// Cleanup drops sessions created more than maxAge ago together with
	// their conversations and returns how many sessions were removed.
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
