package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	tokenpool "github.com/goliatone/go-tokenpool"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const rootPath = "data/sql/migrations"

// Registration describes the migration tree registered for one dialect.
type Registration struct {
	Dialect string
	Path    string
	// Files lists the up migrations in apply order.
	Files []string
}

// DialectForDriver maps a database/sql driver name to its migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pq", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}

// Source resolves the migration tree of dialect. Postgres files sit at the
// top of the tree and the sqlite variants under sqlite/. A nil root uses the
// embedded tree. Every up migration must ship its down pair.
func Source(dialect string, root fs.FS) (fs.FS, Registration, error) {
	if root == nil {
		root = tokenpool.GetMigrationsFS()
	}
	reg := Registration{Dialect: strings.TrimSpace(strings.ToLower(dialect))}

	base, err := fs.Sub(root, rootPath)
	if err != nil {
		return nil, reg, fmt.Errorf("migrations: resolve %s: %w", rootPath, err)
	}
	var fsys fs.FS
	switch reg.Dialect {
	case DialectPostgres:
		fsys, reg.Path = base, rootPath
	case DialectSQLite:
		fsys, err = fs.Sub(base, "sqlite")
		if err != nil {
			return nil, reg, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
		}
		reg.Path = rootPath + "/sqlite"
	default:
		return nil, reg, fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}

	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, reg, fmt.Errorf("migrations: glob %s: %w", reg.Path, err)
	}
	if len(ups) == 0 {
		return nil, reg, fmt.Errorf("migrations: %s has no *.up.sql files", reg.Path)
	}
	slices.Sort(ups)
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(fsys, down); err != nil {
			return nil, reg, fmt.Errorf("migrations: %s/%s has no down migration", reg.Path, up)
		}
	}
	reg.Files = ups
	return fsys, reg, nil
}

// Apply registers the migrations of a single dialect and runs them. register
// and migrate are usually bound to a go-persistence-bun client.
func Apply(ctx context.Context, dialect string, register func(fs.FS), migrate func(context.Context) error) (Registration, error) {
	if register == nil || migrate == nil {
		return Registration{}, fmt.Errorf("migrations: register and migrate functions are required")
	}
	fsys, reg, err := Source(dialect, nil)
	if err != nil {
		return reg, err
	}
	register(fsys)
	if err := migrate(ctx); err != nil {
		return reg, fmt.Errorf("migrations: apply %s: %w", reg.Dialect, err)
	}
	return reg, nil
}
