package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDB is the part of a pgx pool the migrator uses.
type PostgresDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// pgLockKey serializes migrators of different processes.
const pgLockKey = 0x666c655f6d6967 // "fle_mig"

const pgVersionTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// ApplyPostgres applies the embedded PostgreSQL migrations not yet recorded
// in schema_migrations. Each migration runs in its own transaction together
// with its version record.
func ApplyPostgres(ctx context.Context, db PostgresDB) (applied int, err error) {
	migs, err := Load(PostgresFS, "postgres")
	if err != nil {
		return 0, err
	}
	if _, err := db.Exec(ctx, pgVersionTable); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migs {
		done, err := applyPostgres(ctx, db, m)
		if err != nil {
			return applied, fmt.Errorf("apply migration %03d_%s: %w", m.Version, m.Name, err)
		}
		if done {
			applied++
		}
	}
	return applied, nil
}

func applyPostgres(ctx context.Context, db PostgresDB, m Migration) (bool, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(pgLockKey)); err != nil {
		return false, fmt.Errorf("lock: %w", err)
	}
	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check version: %w", err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		return false, fmt.Errorf("record version: %w", err)
	}
	return true, tx.Commit(ctx)
}
