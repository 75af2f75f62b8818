package models

import (
	"strings"
	"time"

	"research-chat/backend/pkg/errors"
)

// TimestampLayout is the textual form of created_at in exports and filters
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Role identifies who produced a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the defined roles
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// RolePolicy decides which role labels are accepted at the boundary.
// With Normalize unset only the canonical labels pass.
type RolePolicy struct {
	Normalize bool
	Aliases   map[string]Role
}

// ParseRole maps an incoming label onto a Role under policy
func ParseRole(label string, policy RolePolicy) (Role, error) {
	key := strings.ToLower(strings.TrimSpace(label))
	if key == "" {
		return "", errors.NewValidationError("role", "must not be empty")
	}
	if r := Role(key); r.Valid() {
		return r, nil
	}
	if policy.Normalize {
		if r, ok := policy.Aliases[key]; ok && r.Valid() {
			return r, nil
		}
	}
	return "", errors.NewValidationError("role", "has unknown label "+label)
}

// ChatMessage is one immutable turn of a conversation
type ChatMessage struct {
	ID             uint64    `json:"-" gorm:"primaryKey;autoIncrement"`
	SessionID      string    `json:"session_id" gorm:"column:session_id;not null"`
	ConversationID string    `json:"conversation_id" gorm:"column:conversation_id;not null"`
	Content        string    `json:"message" gorm:"column:message;not null"`
	Role           Role      `json:"role" gorm:"column:role;not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at;not null"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// Stats is a point-in-time summary of the primary sink.
// The timestamps are nil while the store is empty.
type Stats struct {
	TotalMessages       int64      `json:"total_messages"`
	UniqueSessions      int64      `json:"unique_sessions"`
	UniqueConversations int64      `json:"unique_conversations"`
	EarliestMessage     *time.Time `json:"earliest_message"`
	LatestMessage       *time.Time `json:"latest_message"`
}
