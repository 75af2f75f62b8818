// Package sink holds the destinations chat messages are written to.
package sink

import (
	"context"

	"research-chat/backend/conversation/models"
)

// Sink is a storage or forwarding destination for logged chat turns
type Sink interface {
	Name() string
	Write(ctx context.Context, message models.ChatMessage) error
	Read(ctx context.Context, conversationID string) ([]models.ChatMessage, error)
}

// StatsReader is implemented by sinks that can summarize their contents
type StatsReader interface {
	Stats(ctx context.Context) (models.Stats, error)
}

// RowIterator is implemented by sinks that can stream every stored message
type RowIterator interface {
	Each(ctx context.Context, fn func(models.ChatMessage) error) error
}

// Pinger is implemented by sinks with a cheap reachability check
type Pinger interface {
	Ping(ctx context.Context) error
}

// Binding attaches the required flag to a configured sink.
// A failed write to a required sink makes the logging call report false.
type Binding struct {
	Sink     Sink
	Required bool
}
