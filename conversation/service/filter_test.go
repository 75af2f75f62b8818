package service

import (
	"testing"
	"time"

	"research-chat/backend/conversation/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMatch(t *testing.T) {
	msg := models.ChatMessage{
		SessionID:      "s1",
		ConversationID: "c1",
		Content:        "I feel fine today",
		Role:           models.RoleUser,
		CreatedAt:      time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"", true},
		{"created_at > '2025-01-01'", true},
		{"created_at > '2025-01-02'", false},
		{"created_at >= '2025-01-01 08:00:00.000000'", true},
		{"role == 'assistant'", false},
		{"session_id == 's1' && conversation_id in ['c1', 'c2']", true},
		{"message.contains('fine')", true},
		{"created_ts < timestamp('2025-01-01T07:00:00Z')", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := CompileFilter(tt.expr)
			require.NoError(t, err)
			got, err := f.Match(msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileFilterRejects(t *testing.T) {
	for _, expr := range []string{
		"created_at >",
		"unknown_column == 'x'",
		"message",
		"1 + 1",
	} {
		_, err := CompileFilter(expr)
		assert.Error(t, err, expr)
	}
}
