package migrations

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseDB is the part of a ClickHouse connection the migrator uses.
type ClickHouseDB interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
}

const chVersionTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    UInt32,
    name       String,
    applied_at DateTime DEFAULT now()
)
ENGINE = ReplacingMergeTree(applied_at)
ORDER BY version`

// ApplyClickHouse applies the embedded ClickHouse migrations not yet
// recorded in schema_migrations of the connected database. The native
// protocol takes one statement per Exec, so migrations run statement by
// statement and a failed migration is not recorded.
func ApplyClickHouse(ctx context.Context, db ClickHouseDB) (applied int, err error) {
	migs, err := Load(ClickhouseFS, "clickhouse")
	if err != nil {
		return 0, err
	}
	if err := db.Exec(ctx, chVersionTable); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	done, err := clickhouseVersions(ctx, db)
	if err != nil {
		return 0, err
	}

	for _, m := range migs {
		if done[m.Version] {
			continue
		}
		for _, stmt := range SplitStatements(m.SQL) {
			if err := db.Exec(ctx, stmt); err != nil {
				return applied, fmt.Errorf("apply migration %03d_%s: %w", m.Version, m.Name, err)
			}
		}
		if err := db.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, uint32(m.Version), m.Name); err != nil {
			return applied, fmt.Errorf("record migration %03d: %w", m.Version, err)
		}
		applied++
	}
	return applied, nil
}

func clickhouseVersions(ctx context.Context, db ClickHouseDB) (map[int]bool, error) {
	rows, err := db.Query(ctx, `SELECT version FROM schema_migrations FINAL`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[int]bool)
	for rows.Next() {
		var v uint32
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[int(v)] = true
	}
	return done, rows.Err()
}
