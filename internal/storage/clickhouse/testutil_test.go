package clickhouse

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	tcclickhouse "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"flashloan-executor/internal/storage/migrations"
)

// setupTestDB starts a ClickHouse container, creates the database through
// EnsureDatabase and applies the embedded migrations.
func setupTestDB(t *testing.T) *Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcclickhouse.Run(ctx, "clickhouse/clickhouse-server:24.1-alpine",
		tcclickhouse.WithUsername("fle"),
		tcclickhouse.WithPassword("fle"),
		tcclickhouse.WithDatabase("default"),
	)
	require.NoError(t, err, "start clickhouse container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	base, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	u, err := url.Parse(base)
	require.NoError(t, err)
	u.Path = "/analytics"
	dsn := u.String()

	require.NoError(t, EnsureDatabase(ctx, dsn))
	conn, err := NewConn(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Equal(t, "analytics", conn.Database())

	n, err := migrations.ApplyClickHouse(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = migrations.ApplyClickHouse(ctx, conn)
	require.NoError(t, err, "second run must be a no-op")
	require.Zero(t, n)

	return conn
}
