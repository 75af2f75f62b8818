package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// runStoreSuite exercises the Store contract against any implementation
func runStoreSuite(t *testing.T, newStore func(now func() time.Time) Store) {
	t.Run("init is idempotent and counts conversations", func(t *testing.T) {
		ctx := context.Background()
		clock := &manualClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
		s := newStore(clock.Now)

		_, err := s.InitSession(ctx, "s1", "2025-01-01T09:00:00Z")
		require.NoError(t, err)
		_, err = s.InitSession(ctx, "s1", "ignored")
		require.NoError(t, err)

		_, err = s.InitConversation(ctx, "c1", "s1", "2025-01-01T09:00:01Z")
		require.NoError(t, err)
		_, err = s.InitConversation(ctx, "c1", "s1", "ignored")
		require.NoError(t, err)
		_, err = s.InitConversation(ctx, "c2", "s1", "2025-01-01T09:05:00Z")
		require.NoError(t, err)

		sess, err := s.Session(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "2025-01-01T09:00:00Z", sess.StartTime)
		assert.Equal(t, 2, sess.ConversationCount)
		assert.Equal(t, []string{"c1", "c2"}, sess.Conversations)
	})

	t.Run("exchanges update counters and history window", func(t *testing.T) {
		ctx := context.Background()
		clock := &manualClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
		s := newStore(clock.Now)

		_, err := s.InitSession(ctx, "s1", "")
		require.NoError(t, err)
		_, err = s.InitConversation(ctx, "c1", "s1", "")
		require.NoError(t, err)

		for i := 0; i < 12; i++ {
			clock.Advance(time.Second)
			require.NoError(t, s.AddExchange(ctx, "c1", "s1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)))
		}

		recent, err := s.RecentExchanges(ctx, "c1", 10)
		require.NoError(t, err)
		require.Len(t, recent, 10)
		assert.Equal(t, "q2", recent[0].UserMessage)
		assert.Equal(t, "a11", recent[9].AIResponse)

		conv, err := s.Conversation(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 12, conv.MessageCount)
		assert.Len(t, conv.Messages, 12)

		sess, err := s.Session(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, 12, sess.MessageCount)

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{TotalSessions: 1, TotalConversations: 1, TotalMessages: 12}, stats)

		assert.ErrorIs(t, s.AddExchange(ctx, "unknown", "s1", "q", "a"), ErrNotFound)
	})

	t.Run("unknown ids", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(time.Now)

		_, err := s.Session(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Conversation(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)

		recent, err := s.RecentExchanges(ctx, "nope", 10)
		require.NoError(t, err)
		assert.Empty(t, recent)
	})

	t.Run("cleanup removes old sessions and their conversations", func(t *testing.T) {
		ctx := context.Background()
		clock := &manualClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
		s := newStore(clock.Now)

		_, err := s.InitSession(ctx, "old", "")
		require.NoError(t, err)
		_, err = s.InitConversation(ctx, "old-c", "old", "")
		require.NoError(t, err)

		clock.Advance(30 * time.Hour)
		_, err = s.InitSession(ctx, "new", "")
		require.NoError(t, err)
		_, err = s.InitConversation(ctx, "new-c", "new", "")
		require.NoError(t, err)

		removed, err := s.Cleanup(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		_, err = s.Session(ctx, "old")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Conversation(ctx, "old-c")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Session(ctx, "new")
		assert.NoError(t, err)

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.TotalSessions)
		assert.Equal(t, 1, stats.TotalConversations)
	})
}
