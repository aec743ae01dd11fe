package migrations

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

// ErrBadName is returned for a migration file not named NNN_description.sql.
var ErrBadName = errors.New("migration file must be named NNN_description.sql")

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Load reads the migrations in dir ordered by version.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations %s: %w", dir, err)
	}

	seen := make(map[int]string)
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, name, ok := strings.Cut(strings.TrimSuffix(e.Name(), ".sql"), "_")
		version, err := strconv.Atoi(prefix)
		if !ok || err != nil || version <= 0 || name == "" {
			return nil, fmt.Errorf("%w: %s", ErrBadName, e.Name())
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d: %s, %s", version, prev, e.Name())
		}
		seen[version] = e.Name()

		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(data)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// SplitStatements splits sql on semicolons outside quoted text and comments.
// Comments are dropped and blank statements skipped.
func SplitStatements(sql string) []string {
	var (
		stmts []string
		cur   strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			cur.WriteByte('\n')
		case ch == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				i = len(sql)
			} else {
				i += end + 3
			}
			cur.WriteByte(' ')
		case ch == '\'' || ch == '"' || ch == '`':
			i = copyQuoted(&cur, sql, i)
		case ch == ';':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	flush()
	return stmts
}

// copyQuoted copies the quoted run starting at sql[start] and returns the
// index of its closing quote. Doubled quotes and backslash escapes stay
// inside the run.
func copyQuoted(b *strings.Builder, sql string, start int) int {
	q := sql[start]
	b.WriteByte(q)
	for i := start + 1; i < len(sql); i++ {
		ch := sql[i]
		b.WriteByte(ch)
		switch {
		case ch == '\\' && i+1 < len(sql):
			i++
			b.WriteByte(sql[i])
		case ch == q && i+1 < len(sql) && sql[i+1] == q:
			i++
			b.WriteByte(sql[i])
		case ch == q:
			return i
		}
	}
	return len(sql)
}
