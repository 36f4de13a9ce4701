package sqlite

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"sparkify/internal/storage"
	"sparkify/internal/storage/sqldb"
)

//go:embed queries/*.sql
var queries embed.FS

// Gateway implements storage.Gateway for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has no native TIMESTAMPTZ type. modernc.org/sqlite would store a
//     time.Time with its own string layout, so every time.Time argument is
//     rewritten to RFC3339Nano UTC before binding. That keeps start_time
//     sortable and lets ParseTime read it back.
//   - Upserts use INSERT OR IGNORE / ON CONFLICT DO UPDATE, which rely on the
//     PRIMARY KEY constraints of the target tables.
type Gateway struct {
	*sqldb.Gateway
}

func init() {
	storage.Register("sqlite", Open)
}

// DefaultStatements returns the embedded SQLite statement set.
func DefaultStatements() storage.Statements {
	s, err := storage.LoadStatements(queries, "queries")
	if err != nil {
		// Embedded at build time; a failure here is a packaging bug.
		panic(err)
	}
	return s
}

// Open opens a SQLite database file (or "file:...?..." URI) as a Gateway.
func Open(ctx context.Context, cfg storage.Config) (storage.Gateway, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: empty dsn")
	}
	stmts := DefaultStatements().Override(cfg.Statements)
	g, err := sqldb.Open(ctx, "sqlite", "sqlite", cfg.DSN, stmts)
	if err != nil {
		return nil, err
	}
	return &Gateway{Gateway: g}, nil
}

// Exec implements storage.Gateway.
func (g *Gateway) Exec(ctx context.Context, stmt storage.StatementName, args ...any) error {
	return g.Gateway.Exec(ctx, stmt, bindArgs(args)...)
}

// QueryRow implements storage.Gateway.
func (g *Gateway) QueryRow(ctx context.Context, stmt storage.StatementName, args ...any) storage.Row {
	return g.Gateway.QueryRow(ctx, stmt, bindArgs(args)...)
}

// bindArgs converts time values to their TEXT storage form. Other values pass
// through untouched; the slice is copied only when something changes.
func bindArgs(args []any) []any {
	var out []any
	for i, a := range args {
		var s string
		switch v := a.(type) {
		case time.Time:
			s = FormatTime(v)
		case *time.Time:
			if v == nil {
				continue
			}
			s = FormatTime(*v)
		default:
			continue
		}
		if out == nil {
			out = append([]any(nil), args...)
		}
		out[i] = s
	}
	if out == nil {
		return args
	}
	return out
}

// FormatTime formats a time as RFC3339Nano in UTC.
// We store timestamps as TEXT for reliable scanning/parsing with modernc.org/sqlite.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime parses timestamps returned by SQLite into time.Time.
//
// Supported formats:
//   - RFC3339Nano (what we write)
//   - RFC3339
//   - Common "SQLite-like" formats used by other tools/libs:
//     "2006-01-02 15:04:05Z07:00"
//     "2006-01-02 15:04:05.999999999Z07:00"
//     "2006-01-02 15:04:05" (interpreted as UTC)
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if layout == "2006-01-02 15:04:05" {
			if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return ts.UTC(), nil
			}
			continue
		}
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}

var _ storage.Gateway = (*Gateway)(nil)
