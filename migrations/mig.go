package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"

	"github.com/pressly/goose/v3"
)

//go:embed files/postgres/*.sql files/sqlite/*.sql
var migrationFS embed.FS

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// Up applies the shared-partition migrations for dialect.
func Up(ctx context.Context, db *sql.DB, dialect string) error {
	dir, err := dialectDir(dialect)
	if err != nil {
		return err
	}
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Version reports the current migration version.
func Version(ctx context.Context, db *sql.DB, dialect string) (int64, error) {
	if _, err := dialectDir(dialect); err != nil {
		return 0, err
	}
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect(dialect); err != nil {
		return 0, fmt.Errorf("set goose dialect: %w", err)
	}
	v, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	return v, nil
}

func dialectDir(dialect string) (string, error) {
	switch dialect {
	case DialectPostgres:
		return path.Join("files", "postgres"), nil
	case DialectSQLite:
		return path.Join("files", "sqlite"), nil
	default:
		return "", fmt.Errorf("unsupported migration dialect %q", dialect)
	}
}
