package migrate

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func TestEmbeddedMigrationsPresent(t *testing.T) {
	for _, dialect := range []string{"postgres", "sqlite"} {
		files, err := Default().Files(dialect)
		if err != nil {
			t.Fatalf("%s: %v", dialect, err)
		}
		if len(files) == 0 {
			t.Fatalf("%s: no migrations embedded", dialect)
		}
	}
	if _, err := Default().Files("mysql"); err == nil {
		t.Fatalf("expected unsupported dialect error")
	}
}

func TestFilesSortedAndFiltered(t *testing.T) {
	r := NewRunner(fstest.MapFS{
		"migrations/sqlite/0002_b.sql":   {Data: []byte("SELECT 1;")},
		"migrations/sqlite/0001_a.sql":   {Data: []byte("SELECT 1;")},
		"migrations/sqlite/README.md":    {Data: []byte("docs")},
		"migrations/postgres/0001_a.sql": {Data: []byte("SELECT 1;")},
	})
	files, err := r.Files("sqlite")
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	want := []string{"migrations/sqlite/0001_a.sql", "migrations/sqlite/0002_b.sql"}
	if len(files) != len(want) || files[0] != want[0] || files[1] != want[1] {
		t.Fatalf("files got %v want %v", files, want)
	}
}

func TestApplySQLiteIsIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", "file:migrate_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	applied, err := Default().Apply(ctx, db, "sqlite")
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if len(applied) == 0 {
		t.Fatalf("expected migrations to be applied")
	}
	applied, err = Default().Apply(ctx, db, "sqlite")
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected no pending migrations, got %v", applied)
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		t.Fatalf("events table missing: %v", err)
	}
}
