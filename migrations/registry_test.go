package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	tokenpool "github.com/goliatone/go-tokenpool"
	_ "github.com/mattn/go-sqlite3"
)

func TestSource_ResolvesEachDialect(t *testing.T) {
	cases := map[string]string{
		DialectPostgres: "data/sql/migrations",
		DialectSQLite:   "data/sql/migrations/sqlite",
	}
	for dialect, wantPath := range cases {
		fsys, reg, err := Source(dialect, nil)
		if err != nil {
			t.Fatalf("source %s: %v", dialect, err)
		}
		if reg.Dialect != dialect || reg.Path != wantPath {
			t.Fatalf("unexpected registration %+v", reg)
		}
		want := []string{"00001_tokenpool_accounts.up.sql", "00002_tokenpool_pools.up.sql"}
		if strings.Join(reg.Files, ",") != strings.Join(want, ",") {
			t.Fatalf("unexpected %s files %v", dialect, reg.Files)
		}
		if _, err := fs.ReadFile(fsys, want[0]); err != nil {
			t.Fatalf("read %s migration: %v", dialect, err)
		}
	}
}

func TestSource_RejectsUnknownDialect(t *testing.T) {
	if _, _, err := Source("mysql", nil); err == nil {
		t.Fatalf("expected unsupported dialect error")
	}
}

func TestSource_RequiresDownMigration(t *testing.T) {
	root := fstest.MapFS{
		"data/sql/migrations/00001_accounts.up.sql":        {Data: []byte("CREATE TABLE a (id TEXT);")},
		"data/sql/migrations/00001_accounts.down.sql":      {Data: []byte("DROP TABLE a;")},
		"data/sql/migrations/sqlite/00001_accounts.up.sql": {Data: []byte("CREATE TABLE a (id TEXT);")},
	}
	if _, _, err := Source(DialectPostgres, root); err != nil {
		t.Fatalf("expected complete postgres tree, got %v", err)
	}
	if _, _, err := Source(DialectSQLite, root); err == nil || !strings.Contains(err.Error(), "down migration") {
		t.Fatalf("expected missing down migration error, got %v", err)
	}
}

func TestMigrationPairs_ExistForBothDialects(t *testing.T) {
	root := tokenpool.GetMigrationsFS()
	for _, name := range []string{"00001_tokenpool_accounts", "00002_tokenpool_pools"} {
		for _, dir := range []string{"data/sql/migrations", "data/sql/migrations/sqlite"} {
			for _, direction := range []string{"up", "down"} {
				migrationPath := dir + "/" + name + "." + direction + ".sql"
				content, err := fs.ReadFile(root, migrationPath)
				if err != nil {
					t.Fatalf("read migration %s: %v", migrationPath, err)
				}
				if strings.TrimSpace(string(content)) == "" {
					t.Fatalf("expected migration %s to have SQL content", migrationPath)
				}
			}
		}
	}
}

func TestDialectForDriver(t *testing.T) {
	cases := map[string]string{
		"sqlite3":  DialectSQLite,
		"SQLite":   DialectSQLite,
		"postgres": DialectPostgres,
		"pq":       DialectPostgres,
	}
	for driver, want := range cases {
		got, err := DialectForDriver(driver)
		if err != nil || got != want {
			t.Fatalf("driver %s: expected %s, got %s (%v)", driver, want, got, err)
		}
	}
	if _, err := DialectForDriver("mysql"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestApply_RegistersOnlyRequestedDialect(t *testing.T) {
	var registered int
	migrated := false
	_, err := Apply(context.Background(), DialectPostgres,
		func(fsys fs.FS) {
			registered++
			if _, err := fs.ReadFile(fsys, "00001_tokenpool_accounts.up.sql"); err != nil {
				t.Fatalf("expected postgres tree, got %v", err)
			}
		},
		func(context.Context) error {
			migrated = true
			return nil
		},
	)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if registered != 1 || !migrated {
		t.Fatalf("expected one registration and a migrate call, got %d %v", registered, migrated)
	}
}

func TestApply_RequiresCallbacks(t *testing.T) {
	if _, err := Apply(context.Background(), DialectSQLite, nil, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected error without register function")
	}
}

func TestApply_PropagatesMigrateError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Apply(context.Background(), DialectSQLite, func(fs.FS) {}, func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected migrate error, got %v", err)
	}
}

func TestSQLiteMigrations_ApplyAndRollback(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", "file:migrations-apply-rollback?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	sqliteMigrations, err := fs.Sub(tokenpool.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	for _, migration := range []string{"00001_tokenpool_accounts.up.sql", "00002_tokenpool_pools.up.sql"} {
		if err := execSQLMigration(ctx, db, sqliteMigrations, migration); err != nil {
			t.Fatalf("apply %s: %v", migration, err)
		}
	}

	insert := `INSERT INTO tokenpool_accounts (id, email, password) VALUES (?, ?, ?)`
	if _, err := db.ExecContext(ctx, insert, "a1", "a@example.com", "pw"); err != nil {
		t.Fatalf("insert account: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "a2", "a@example.com", "pw"); err == nil {
		t.Fatalf("expected unique email violation")
	}

	var active int
	var sessionToken string
	if err := db.QueryRowContext(ctx,
		`SELECT active, session_token FROM tokenpool_accounts WHERE id = ?`, "a1",
	).Scan(&active, &sessionToken); err != nil {
		t.Fatalf("read account: %v", err)
	}
	if active != 1 || sessionToken != "" {
		t.Fatalf("unexpected defaults active=%d session_token=%q", active, sessionToken)
	}

	for _, migration := range []string{"00002_tokenpool_pools.down.sql", "00001_tokenpool_accounts.down.sql"} {
		if err := execSQLMigration(ctx, db, sqliteMigrations, migration); err != nil {
			t.Fatalf("rollback %s: %v", migration, err)
		}
	}
	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'tokenpool_%'`,
	).Scan(&count); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected tables to be dropped, got %d", count)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
