//go:build integration

package repository

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"research-chat/backend/pkg/config"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"
)

func TestGormMessageRepositoryPostgres(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("chatlog"),
		postgres.WithUsername("chatlog"),
		postgres.WithPassword("chatlog"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	admin, err := config.NewDB(config.LocalSinkConfig{Driver: "postgres", DSN: dsn}, false)
	require.NoError(t, err)

	var n atomic.Int64
	runRepositorySuite(t, func(t *testing.T) *gorm.DB {
		// each case gets its own schema so row counts stay independent
		schema := fmt.Sprintf("case_%d", n.Add(1))
		require.NoError(t, admin.Exec("CREATE SCHEMA "+schema).Error)

		db, err := config.NewDB(config.LocalSinkConfig{
			Driver: "postgres",
			DSN:    dsn + "&search_path=" + schema,
		}, false)
		require.NoError(t, err)
		t.Cleanup(func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		})
		require.NoError(t, Migrate(ctx, db, "postgres"))
		return db
	})
}
