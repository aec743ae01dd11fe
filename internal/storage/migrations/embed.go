// Package migrations holds the embedded SQL schema and applies it in version
// order, recording each applied version in a schema_migrations table.
package migrations

import "embed"

// Files are named NNN_description.sql; NNN is the version.
var (
	//go:embed postgres/*.sql
	PostgresFS embed.FS

	//go:embed clickhouse/*.sql
	ClickhouseFS embed.FS
)
