package migrations

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Embedded(t *testing.T) {
	pg, err := Load(PostgresFS, "postgres")
	require.NoError(t, err)
	require.Len(t, pg, 3)
	assert.Equal(t, 1, pg[0].Version)
	assert.Equal(t, "strategies", pg[0].Name)
	assert.Equal(t, "profits", pg[2].Name)

	ch, err := Load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.Len(t, ch, 1)
	assert.Len(t, SplitStatements(ch[0].SQL), 1)
}

func TestLoad_OrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/010_later.sql":  {Data: []byte("SELECT 10")},
		"m/002_second.sql": {Data: []byte("SELECT 2")},
		"m/README.md":      {Data: []byte("ignored")},
	}
	migs, err := Load(fsys, "m")
	require.NoError(t, err)
	require.Len(t, migs, 2)
	assert.Equal(t, 2, migs[0].Version)
	assert.Equal(t, 10, migs[1].Version)
	assert.Equal(t, "later", migs[1].Name)
}

func TestLoad_RejectsBadNames(t *testing.T) {
	for _, name := range []string{"m/schema.sql", "m/0_zero.sql", "m/001.sql", "m/abc_x.sql"} {
		_, err := Load(fstest.MapFS{name: {Data: []byte("SELECT 1")}}, "m")
		assert.ErrorIs(t, err, ErrBadName, name)
	}

	_, err := Load(fstest.MapFS{
		"m/001_a.sql": {Data: []byte("SELECT 1")},
		"m/01_b.sql":  {Data: []byte("SELECT 1")},
	}, "m")
	assert.ErrorContains(t, err, "duplicate migration version 1")
}

func TestSplitStatements(t *testing.T) {
	sql := `
-- header; with a semicolon
CREATE TABLE a (x UInt8) ENGINE = Memory;

/* block; comment */
INSERT INTO a VALUES ('it''s; fine'), ('back\'slash;');
SELECT "odd;name" FROM a;;
`
	stmts := SplitStatements(sql)
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE TABLE a (x UInt8) ENGINE = Memory", stmts[0])
	assert.Equal(t, `INSERT INTO a VALUES ('it''s; fine'), ('back\'slash;')`, stmts[1])
	assert.Equal(t, `SELECT "odd;name" FROM a`, stmts[2])
}

func TestSplitStatements_Empty(t *testing.T) {
	assert.Empty(t, SplitStatements("  -- nothing\n /* here */ ;"))
}
