// Package migrate applies the SQL schema shipped with the binary.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed migrations
var embedded embed.FS

const versionTable = `schema_migrations`

type Runner struct {
	FS fs.FS
}

func NewRunner(files fs.FS) *Runner {
	return &Runner{FS: files}
}

// Default returns a runner over the embedded migrations.
func Default() *Runner {
	return NewRunner(embedded)
}

// Files lists the migration files for dialect in apply order.
func (r *Runner) Files(dialect string) ([]string, error) {
	if dialect == "" {
		return nil, fmt.Errorf("empty dialect")
	}
	base := path.Join("migrations", dialect)
	entries, err := fs.ReadDir(r.FS, base)
	if err != nil {
		return nil, fmt.Errorf("unsupported dialect %q: %w", dialect, err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, path.Join(base, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// Apply runs every migration not yet recorded in schema_migrations and
// returns the versions it applied.
func (r *Runner) Apply(ctx context.Context, db *sql.DB, dialect string) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("nil db")
	}
	files, err := r.Files(dialect)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+versionTable+` (version TEXT PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return nil, fmt.Errorf("create %s: %w", versionTable, err)
	}
	done, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	applied := make([]string, 0, len(files))
	for _, file := range files {
		version := strings.TrimSuffix(path.Base(file), ".sql")
		if done[version] {
			continue
		}
		sqlBytes, err := fs.ReadFile(r.FS, file)
		if err != nil {
			return applied, err
		}
		if _, err := db.ExecContext(ctx, string(sqlBytes)); err != nil {
			return applied, fmt.Errorf("apply %s: %w", file, err)
		}
		insert := `INSERT INTO ` + versionTable + ` (version, applied_at) VALUES (` + placeholder(dialect, 1) + `, ` + placeholder(dialect, 2) + `)`
		if _, err := db.ExecContext(ctx, insert, version, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return applied, fmt.Errorf("record %s: %w", version, err)
		}
		applied = append(applied, version)
	}
	return applied, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM `+versionTable)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", versionTable, err)
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

func placeholder(dialect string, n int) string {
	if dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
