package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sparkify/internal/storage"
)

//go:embed queries/*.sql
var queries embed.FS

/*
Gateway implements storage.Gateway for Postgres.

It holds exactly one *pgx.Conn (not a pool): the loader is a single cursor
working through one implicit transaction per file. The transaction is begun on
first use and ended by Commit or Rollback, mirroring a DB-API connection.

Upserts live in the statements, not here:
  - songs, artists, time: ON CONFLICT (...) DO NOTHING
  - users: ON CONFLICT (user_id) DO UPDATE SET level = EXCLUDED.level
*/
type Gateway struct {
	conn  pgxConn
	stmts storage.Statements
	tx    pgx.Tx
}

// pgxConn is the subset of *pgx.Conn the gateway uses.
type pgxConn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Close(ctx context.Context) error
}

// DefaultStatements returns the embedded Postgres statement set.
func DefaultStatements() storage.Statements {
	s, err := storage.LoadStatements(queries, "queries")
	if err != nil {
		panic(err)
	}
	return s
}

// Open connects to Postgres using a libpq keyword/value string or a URL.
func Open(ctx context.Context, cfg storage.Config) (storage.Gateway, error) {
	stmts := DefaultStatements().Override(cfg.Statements)
	if err := stmts.Validate(); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	conn, err := pgx.Connect(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Gateway{conn: conn, stmts: stmts}, nil
}

func (g *Gateway) begin(ctx context.Context) (pgx.Tx, error) {
	if g.tx != nil {
		return g.tx, nil
	}
	tx, err := g.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
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
	if _, err := tx.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("postgres: exec %s: %w", name, err)
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
	return &row{name: name, r: tx.QueryRow(ctx, q, args...)}
}

// Commit implements storage.Gateway.
func (g *Gateway) Commit(ctx context.Context) error {
	if g.tx == nil {
		return nil
	}
	tx := g.tx
	g.tx = nil
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
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
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}

// Close implements storage.Gateway.
func (g *Gateway) Close() error {
	ctx := context.Background()
	return errors.Join(g.Rollback(ctx), g.conn.Close(ctx))
}

type row struct {
	name storage.StatementName
	r    pgx.Row
}

func (r *row) Scan(dest ...any) error {
	err := r.r.Scan(dest...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return storage.ErrNoRows
	default:
		return fmt.Errorf("postgres: query %s: %w", r.name, err)
	}
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

var _ storage.Gateway = (*Gateway)(nil)
