// Package sqldb implements storage.Gateway over database/sql.
//
// The SQLite and SQL Server backends differ only in driver name, DSN format
// and statement dialect, so both wrap this type and register it under their
// own kind.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sparkify/internal/storage"
)

// Gateway is a storage.Gateway backed by a single *sql.Conn.
//
// database/sql hands out pooled connections; pinning one with db.Conn keeps
// the "one connection, one cursor" model and makes the implicit transaction
// see its own uncommitted writes on every lookup.
type Gateway struct {
	kind  string
	db    *sql.DB
	conn  dbConn
	stmts storage.Statements
	tx    txConn
}

// Open opens driverName with dsn, pins one connection and verifies it.
func Open(ctx context.Context, kind, driverName, dsn string, stmts storage.Statements) (*Gateway, error) {
	if err := stmts.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", kind, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: connect: %w", kind, err)
	}
	if err := c.PingContext(ctx); err != nil {
		_ = c.Close()
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", kind, err)
	}

	return &Gateway{
		kind:  kind,
		db:    db,
		conn:  &sqlConn{c: c},
		stmts: stmts,
	}, nil
}

// begin returns the open transaction, starting one if needed.
func (g *Gateway) begin(ctx context.Context) (txConn, error) {
	if g.tx != nil {
		return g.tx, nil
	}
	tx, err := g.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", g.kind, err)
	}
	g.tx = tx
	return tx, nil
}

// Exec implements storage.Gateway.
func (g *Gateway) Exec(ctx context.Context, name storage.StatementName, args ...any) error {
	q, err := g.stmts.Text(name)
	if err != nil {
		return err
	}
	tx, err := g.begin(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("%s: exec %s: %w", g.kind, name, err)
	}
	return nil
}

// QueryRow implements storage.Gateway.
func (g *Gateway) QueryRow(ctx context.Context, name storage.StatementName, args ...any) storage.Row {
	q, err := g.stmts.Text(name)
	if err != nil {
		return errRow{err: err}
	}
	tx, err := g.begin(ctx)
	if err != nil {
		return errRow{err: err}
	}
	return &row{kind: g.kind, name: name, r: tx.QueryRowContext(ctx, q, args...)}
}

// Commit implements storage.Gateway.
func (g *Gateway) Commit(ctx context.Context) error {
	if g.tx == nil {
		return nil
	}
	tx := g.tx
	g.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", g.kind, err)
	}
	return nil
}

// Rollback implements storage.Gateway.
func (g *Gateway) Rollback(ctx context.Context) error {
	if g.tx == nil {
		return nil
	}
	tx := g.tx
	g.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%s: rollback: %w", g.kind, err)
	}
	return nil
}

// Close implements storage.Gateway.
func (g *Gateway) Close() error {
	rbErr := g.Rollback(context.Background())
	connErr := g.conn.Close()
	var dbErr error
	if g.db != nil {
		dbErr = g.db.Close()
	}
	return errors.Join(rbErr, connErr, dbErr)
}

// row adapts *sql.Row to storage.Row, mapping sql.ErrNoRows.
type row struct {
	kind string
	name storage.StatementName
	r    rowScanner
}

func (r *row) Scan(dest ...any) error {
	err := r.r.Scan(dest...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return storage.ErrNoRows
	default:
		return fmt.Errorf("%s: query %s: %w", r.kind, r.name, err)
	}
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// ---- database/sql seam types ----

// dbConn is a small interface over *sql.Conn used to make this package testable.
type dbConn interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is a small interface over *sql.Tx.
type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) rowScanner
	Commit() error
	Rollback() error
}

// rowScanner is a narrow adapter over *sql.Row.Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

type sqlConn struct {
	c *sql.Conn
}

func (s *sqlConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.c.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

func (s *sqlConn) Close() error { return s.c.Close() }

type sqlTx struct {
	tx *sql.Tx
}

func (s *sqlTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.tx.ExecContext(ctx, query, args...)
}

func (s *sqlTx) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return s.tx.QueryRowContext(ctx, query, args...)
}

func (s *sqlTx) Commit() error   { return s.tx.Commit() }
func (s *sqlTx) Rollback() error { return s.tx.Rollback() }

var (
	_ storage.Gateway = (*Gateway)(nil)
	_ dbConn          = (*sqlConn)(nil)
	_ txConn          = (*sqlTx)(nil)
)
