// Package session tracks browser sessions and their conversations for the chat endpoint.
package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned for unknown session or conversation ids
var ErrNotFound = errors.New("not found")

type Session struct {
	SessionID         string    `json:"session_id"`
	StartTime         string    `json:"start_time"`
	CreatedAt         time.Time `json:"created_at"`
	ConversationCount int       `json:"conversation_count"`
	MessageCount      int       `json:"message_count"`
	Conversations     []string  `json:"conversations"`
}

type Conversation struct {
	ConversationID string     `json:"conversation_id"`
	SessionID      string     `json:"session_id"`
	StartTime      string     `json:"start_time"`
	CreatedAt      time.Time  `json:"created_at"`
	Messages       []Exchange `json:"messages"`
	MessageCount   int        `json:"message_count"`
}

// Exchange is one user message with the reply it received
type Exchange struct {
	Timestamp   time.Time `json:"timestamp"`
	UserMessage string    `json:"user_message"`
	AIResponse  string    `json:"ai_response"`
}

type Stats struct {
	TotalSessions      int `json:"total_sessions"`
	TotalConversations int `json:"total_conversations"`
	TotalMessages      int `json:"total_messages"`
}
