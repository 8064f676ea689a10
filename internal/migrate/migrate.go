// Package migrate bootstraps the six import tables with goose.
//
// Migrations are embedded per dialect under sql/<kind>. The import run itself
// never changes schema; this package backs the separate `importer migrate`
// step and the end-to-end tests.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	// database/sql drivers for the three dialects.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

//go:embed sql
var migrations embed.FS

type dialect struct {
	goose  goose.Dialect
	driver string
	dir    string
}

var dialects = map[string]dialect{
	"postgres":  {goose: goose.DialectPostgres, driver: "pgx", dir: "sql/postgres"},
	"sqlite":    {goose: goose.DialectSQLite3, driver: "sqlite", dir: "sql/sqlite"},
	"sqlserver": {goose: goose.DialectMSSQL, driver: "sqlserver", dir: "sql/sqlserver"},
}

// Result is one applied migration.
type Result struct {
	Version int64
	Path    string
}

// Open opens a database/sql handle for kind.
func Open(kind, dsn string) (*sql.DB, error) {
	d, ok := dialects[kind]
	if !ok {
		return nil, fmt.Errorf("migrate: unsupported kind=%s", kind)
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("migrate: open %s: %w", kind, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Up applies every pending migration for kind to db and returns what ran.
// db is not closed.
func Up(ctx context.Context, db *sql.DB, kind string) ([]Result, error) {
	p, err := provider(db, kind)
	if err != nil {
		return nil, err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate: up: %w", err)
	}
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Source == nil {
			continue
		}
		out = append(out, Result{Version: r.Source.Version, Path: r.Source.Path})
	}
	return out, nil
}

// Version returns the current schema version of db.
func Version(ctx context.Context, db *sql.DB, kind string) (int64, error) {
	p, err := provider(db, kind)
	if err != nil {
		return 0, err
	}
	v, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrate: version: %w", err)
	}
	return v, nil
}

func provider(db *sql.DB, kind string) (*goose.Provider, error) {
	d, ok := dialects[kind]
	if !ok {
		return nil, fmt.Errorf("migrate: unsupported kind=%s", kind)
	}
	fsys, err := fs.Sub(migrations, d.dir)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	p, err := goose.NewProvider(d.goose, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("migrate: provider: %w", err)
	}
	return p, nil
}
