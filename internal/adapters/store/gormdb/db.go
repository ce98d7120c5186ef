package gormdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	gormpostgres "gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// DB holds separate reader and writer handles. With a single DSN both point
// at the same server through independent pools.
type DB struct {
	R *gorm.DB
	W *gorm.DB
}

type Tx struct {
	*gorm.DB
}

type cbfn func(tx *Tx) error

func New(reader, writer *gorm.DB) *DB {
	if reader == nil {
		reader = writer
	}
	return &DB{R: reader, W: writer}
}

func (db *DB) ReadTX(ctx context.Context, fn cbfn) error {
	return db.R.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Tx{DB: tx})
	}, &sql.TxOptions{ReadOnly: true})
}

func (db *DB) WriteTX(ctx context.Context, fn cbfn) error {
	return db.W.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Tx{DB: tx})
	})
}

func (db *DB) WriteSQLDB() (*sql.DB, error) {
	return db.W.DB()
}

func (db *DB) Close() error {
	var firstErr error
	seen := map[*gorm.DB]bool{}
	for _, g := range []*gorm.DB{db.R, db.W} {
		if g == nil || seen[g] {
			continue
		}
		seen[g] = true
		if err := closeGORM(g); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ io.Closer = (*DB)(nil)

type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type Options struct {
	DSN     string
	ReadDSN string
	Writer  PoolOptions
	Reader  PoolOptions
}

// Open connects the shared registry database. ReadDSN falls back to DSN.
func Open(opts Options) (*DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	readDSN := opts.ReadDSN
	if readDSN == "" {
		readDSN = opts.DSN
	}

	writer, err := OpenHandle(opts.DSN, opts.Writer, false)
	if err != nil {
		return nil, fmt.Errorf("open write db: %w", err)
	}
	reader, err := OpenHandle(readDSN, opts.Reader, false)
	if err != nil {
		_ = closeGORM(writer)
		return nil, fmt.Errorf("open read db: %w", err)
	}
	return &DB{R: reader, W: writer}, nil
}

// OpenHandle opens one Postgres pool. simpleProtocol disables pgx statement
// caching, which is required for connections whose search_path changes.
func OpenHandle(dsn string, pool PoolOptions, simpleProtocol bool) (*gorm.DB, error) {
	g, err := gorm.Open(gormpostgres.New(gormpostgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: simpleProtocol,
	}), &gorm.Config{
		Logger:                 newLogger(),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := g.DB()
	if err != nil {
		_ = closeGORM(g)
		return nil, err
	}
	applyPool(sqlDB, pool)
	return g, nil
}

// OpenSQLite opens a file-backed SQLite database through a single writer
// connection. It backs repository tests and local tooling; partition binding
// requires Postgres.
func OpenSQLite(file string) (*DB, error) {
	g, err := gorm.Open(gormsqlite.Dialector{DriverName: "sqlite", DSN: file}, &gorm.Config{
		Logger: newLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB, err := g.DB()
	if err != nil {
		_ = closeGORM(g)
		return nil, fmt.Errorf("sqlite sql db: %w", err)
	}
	applyPool(sqlDB, PoolOptions{MaxOpenConns: 1, MaxIdleConns: 1})
	if err := applyPragmas(sqlDB); err != nil {
		_ = closeGORM(g)
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	return &DB{R: g, W: g}, nil
}

func applyPool(db *sql.DB, pool PoolOptions) {
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
}

func applyPragmas(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func newLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)
}

func closeGORM(g *gorm.DB) error {
	if g == nil {
		return nil
	}
	sqlDB, err := g.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
