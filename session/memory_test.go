package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(now func() time.Time) Store {
		return NewMemoryStore(now)
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)

	_, err := s.InitSession(ctx, "s1", "")
	require.NoError(t, err)
	_, err = s.InitConversation(ctx, "c1", "s1", "")
	require.NoError(t, err)

	sess, err := s.Session(ctx, "s1")
	require.NoError(t, err)
	sess.Conversations[0] = "mutated"

	again, err := s.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "c1", again.Conversations[0])
}
