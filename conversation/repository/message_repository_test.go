package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"research-chat/backend/conversation/models"
	"research-chat/backend/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.NewDB(config.LocalSinkConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "chat.db"),
	}, false)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	require.NoError(t, Migrate(context.Background(), db, "sqlite"))
	return db
}

func TestGormMessageRepositorySQLite(t *testing.T) {
	runRepositorySuite(t, func(t *testing.T) *gorm.DB { return openSQLite(t) })
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openSQLite(t)
	assert.NoError(t, Migrate(context.Background(), db, "sqlite"))
}

func TestMigrateUnknownDriver(t *testing.T) {
	db := openSQLite(t)
	assert.Error(t, Migrate(context.Background(), db, "duckdb"))
}

func runRepositorySuite(t *testing.T, open func(t *testing.T) *gorm.DB) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := func(t *testing.T, repo *GormMessageRepository) {
		t.Helper()
		ctx := context.Background()
		rows := []models.ChatMessage{
			{SessionID: "s1", ConversationID: "c1", Content: "hi", Role: models.RoleUser, CreatedAt: base},
			{SessionID: "s1", ConversationID: "c1", Content: "hello", Role: models.RoleAssistant, CreatedAt: base.Add(time.Millisecond)},
			{SessionID: "s1", ConversationID: "c2", Content: "again", Role: models.RoleUser, CreatedAt: base.Add(time.Second)},
			{SessionID: "s2", ConversationID: "c3", Content: "other", Role: models.RoleUser, CreatedAt: base.Add(2 * time.Second)},
		}
		for i := range rows {
			require.NoError(t, repo.Create(ctx, &rows[i]))
		}
	}

	t.Run("reads by conversation in order", func(t *testing.T) {
		repo, err := NewGormMessageRepository(open(t))
		require.NoError(t, err)
		seed(t, repo)

		messages, err := repo.GetByConversation(context.Background(), "c1")
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, "hi", messages[0].Content)
		assert.Equal(t, models.RoleAssistant, messages[1].Role)
		assert.True(t, messages[0].CreatedAt.Equal(base))
	})

	t.Run("unknown conversation is empty", func(t *testing.T) {
		repo, err := NewGormMessageRepository(open(t))
		require.NoError(t, err)

		messages, err := repo.GetByConversation(context.Background(), "missing")
		require.NoError(t, err)
		assert.NotNil(t, messages)
		assert.Empty(t, messages)
	})

	t.Run("reads by session", func(t *testing.T) {
		repo, err := NewGormMessageRepository(open(t))
		require.NoError(t, err)
		seed(t, repo)

		messages, err := repo.GetBySession(context.Background(), "s1")
		require.NoError(t, err)
		require.Len(t, messages, 3)
		assert.Equal(t, "again", messages[2].Content)
	})

	t.Run("stats", func(t *testing.T) {
		repo, err := NewGormMessageRepository(open(t))
		require.NoError(t, err)

		empty, err := repo.Stats(context.Background())
		require.NoError(t, err)
		assert.Zero(t, empty.TotalMessages)
		assert.Nil(t, empty.EarliestMessage)
		assert.Nil(t, empty.LatestMessage)

		seed(t, repo)
		stats, err := repo.Stats(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, 4, stats.TotalMessages)
		assert.EqualValues(t, 2, stats.UniqueSessions)
		assert.EqualValues(t, 3, stats.UniqueConversations)
		require.NotNil(t, stats.EarliestMessage)
		require.NotNil(t, stats.LatestMessage)
		assert.True(t, stats.EarliestMessage.Equal(base))
		assert.True(t, stats.LatestMessage.Equal(base.Add(2*time.Second)))
	})

	t.Run("each streams in order and stops on error", func(t *testing.T) {
		repo, err := NewGormMessageRepository(open(t))
		require.NoError(t, err)
		seed(t, repo)

		var contents []string
		err = repo.Each(context.Background(), func(m models.ChatMessage) error {
			contents = append(contents, m.Content)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"hi", "hello", "again", "other"}, contents)

		stop := errors.New("stop")
		var seen int
		err = repo.Each(context.Background(), func(models.ChatMessage) error {
			seen++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, seen)
	})

	t.Run("ping", func(t *testing.T) {
		repo, err := NewGormMessageRepository(open(t))
		require.NoError(t, err)
		assert.NoError(t, repo.Ping(context.Background()))
	})
}
