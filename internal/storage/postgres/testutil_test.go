package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"flashloan-executor/internal/storage/migrations"
)

// setupTestDB starts a PostgreSQL container and applies the embedded
// migrations. The container is removed when the test ends.
func setupTestDB(t *testing.T) *Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("fle"),
		tcpostgres.WithUsername("fle"),
		tcpostgres.WithPassword("fle"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	n, err := migrations.ApplyPostgres(ctx, pool)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = migrations.ApplyPostgres(ctx, pool)
	require.NoError(t, err, "second run must be a no-op")
	require.Zero(t, n)

	return pool
}
