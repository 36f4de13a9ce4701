// Package testhelpers provides database fixtures for tests: a throwaway SQLite
// file with the songplays schema applied, and a shared PostgreSQL container.
package testhelpers

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"sparkify/internal/storage"
	_ "sparkify/internal/storage/sqlite"
)

//go:embed schema/*.sql
var schemas embed.FS

// Schema returns the DDL for a backend kind ("sqlite", "postgres") split into
// individual statements.
func Schema(kind string) ([]string, error) {
	b, err := schemas.ReadFile("schema/" + kind + ".sql")
	if err != nil {
		return nil, fmt.Errorf("testhelpers: schema %s: %w", kind, err)
	}
	var out []string
	for _, s := range strings.Split(string(b), ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// SQLiteDB is a schema-initialized SQLite file plus an independent handle for
// assertions. Reads through DB only see what the gateway has committed.
type SQLiteDB struct {
	DSN     string
	Gateway storage.Gateway
	DB      *sql.DB
}

// NewSQLite creates a fresh database under t.TempDir and opens a gateway on it.
// Both handles are closed via t.Cleanup.
func NewSQLite(t *testing.T) *SQLiteDB {
	t.Helper()

	dsn := NewSQLiteFile(t)
	gw, err := storage.Open(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open sqlite gateway: %v", err)
	}
	t.Cleanup(func() { _ = gw.Close() })

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return &SQLiteDB{DSN: dsn, Gateway: gw, DB: db}
}

// NewSQLiteFile creates a schema-initialized database file and returns its DSN
// without opening a gateway. Use it when the code under test opens its own.
func NewSQLiteFile(t *testing.T) string {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "sparkifydb.sqlite")
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	stmts, err := Schema("sqlite")
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("apply schema: %v\n%s", err, s)
		}
	}
	return dsn
}

// Count returns SELECT COUNT(*) for table.
func (d *SQLiteDB) Count(t *testing.T, table string) int {
	t.Helper()
	return CountRows(t, d.DB, table)
}

// CountRows returns SELECT COUNT(*) for table on db.
func CountRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
