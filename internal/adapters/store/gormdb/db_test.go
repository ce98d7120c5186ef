package gormdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestOpenSQLiteTransactions(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "tx.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if err := db.W.Exec("CREATE TABLE items (name TEXT NOT NULL)").Error; err != nil {
		t.Fatalf("create table: %v", err)
	}

	rollback := errors.New("rollback")
	err = db.WriteTX(ctx, func(tx *Tx) error {
		if err := tx.Exec("INSERT INTO items (name) VALUES (?)", "discarded").Error; err != nil {
			return err
		}
		return rollback
	})
	if !errors.Is(err, rollback) {
		t.Fatalf("expected rollback error, got %v", err)
	}

	if err := db.WriteTX(ctx, func(tx *Tx) error {
		return tx.Exec("INSERT INTO items (name) VALUES (?)", "kept").Error
	}); err != nil {
		t.Fatalf("write tx: %v", err)
	}

	var names []string
	if err := db.ReadTX(ctx, func(tx *Tx) error {
		return tx.Table("items").Pluck("name", &names).Error
	}); err != nil {
		t.Fatalf("read tx: %v", err)
	}
	if len(names) != 1 || names[0] != "kept" {
		t.Fatalf("unexpected rows: %v", names)
	}
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(Options{}); err == nil {
		t.Fatal("expected error without dsn")
	}
}

func TestNewFallsBackToWriter(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "new.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	wrapped := New(nil, db.W)
	if wrapped.R != db.W {
		t.Fatal("reader must fall back to writer")
	}
}
