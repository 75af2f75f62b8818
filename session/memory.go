package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory
type MemoryStore struct {
	mu            sync.RWMutex
	now           func() time.Time
	sessions      map[string]*Session
	conversations map[string]*Conversation
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:           now,
		sessions:      make(map[string]*Session),
		conversations: make(map[string]*Conversation),
	}
}

func (m *MemoryStore) InitSession(_ context.Context, sessionID, startTime string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		s = &Session{
			SessionID:     sessionID,
			StartTime:     startTime,
			CreatedAt:     m.now().UTC(),
			Conversations: []string{},
		}
		m.sessions[sessionID] = s
	}
	return copySession(s), nil
}

func (m *MemoryStore) InitConversation(_ context.Context, conversationID, sessionID, startTime string) (Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[conversationID]
	if !ok {
		c = &Conversation{
			ConversationID: conversationID,
			SessionID:      sessionID,
			StartTime:      startTime,
			CreatedAt:      m.now().UTC(),
			Messages:       []Exchange{},
		}
		m.conversations[conversationID] = c

		if s, ok := m.sessions[sessionID]; ok {
			s.ConversationCount++
			s.Conversations = append(s.Conversations, conversationID)
		}
	}
	return copyConversation(c), nil
}

func (m *MemoryStore) AddExchange(_ context.Context, conversationID, sessionID, userMessage, reply string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	c.Messages = append(c.Messages, Exchange{
		Timestamp:   m.now().UTC(),
		UserMessage: userMessage,
		AIResponse:  reply,
	})
	c.MessageCount++

	if s, ok := m.sessions[sessionID]; ok {
		s.MessageCount++
	}
	return nil
}

func (m *MemoryStore) Session(_ context.Context, sessionID string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return copySession(s), nil
}

func (m *MemoryStore) Conversation(_ context.Context, conversationID string) (Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[conversationID]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return copyConversation(c), nil
}

func (m *MemoryStore) RecentExchanges(_ context.Context, conversationID string, limit int) ([]Exchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[conversationID]
	if !ok || limit <= 0 {
		return []Exchange{}, nil
	}
	from := len(c.Messages) - limit
	if from < 0 {
		from = 0
	}
	return append([]Exchange(nil), c.Messages[from:]...), nil
}

func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		TotalSessions:      len(m.sessions),
		TotalConversations: len(m.conversations),
	}
	for _, s := range m.sessions {
		stats.TotalMessages += s.MessageCount
	}
	return stats, nil
}

func (m *MemoryStore) Cleanup(_ context.Context, maxAge time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for id, s := range m.sessions {
		if !s.CreatedAt.Before(cutoff) {
			continue
		}
		for _, convID := range s.Conversations {
			delete(m.conversations, convID)
		}
		delete(m.sessions, id)
		removed++
	}
	return removed, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func copySession(s *Session) Session {
	out := *s
	out.Conversations = append([]string{}, s.Conversations...)
	return out
}

func copyConversation(c *Conversation) Conversation {
	out := *c
	out.Messages = append([]Exchange{}, c.Messages...)
	return out
}
