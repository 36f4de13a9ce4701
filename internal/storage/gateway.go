package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNoRows is returned by Row.Scan when a lookup statement matched nothing.
// Backends translate their driver-specific sentinel into this one.
var ErrNoRows = errors.New("storage: no rows in result set")

// Config is the minimal configuration needed to open a Gateway.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend; validation is backend-specific.
//   - A zero Statements value means "use the backend's embedded defaults".
type Config struct {
	Kind       string
	DSN        string
	Statements Statements
}

// Row is the result of a single-row lookup (the "fetchone" half of a cursor).
type Row interface {
	Scan(dest ...any) error
}

// Gateway is a single database connection with at most one open transaction.
//
// The first Exec or QueryRow after Open, Commit or Rollback implicitly begins a
// transaction; Commit makes everything since then durable. Callers never see the
// transaction object, which keeps per-file atomicity a property of the gateway
// rather than of every transformer.
//
// Implementations are not safe for concurrent use. The loader is single-threaded.
type Gateway interface {
	// Exec runs a named, parameterized statement inside the current transaction.
	Exec(ctx context.Context, stmt StatementName, args ...any) error

	// QueryRow runs a named lookup and returns its first row. Errors (including
	// ErrNoRows) are deferred to Row.Scan.
	QueryRow(ctx context.Context, stmt StatementName, args ...any) Row

	// Commit commits the open transaction. It is a no-op when none is open.
	Commit(ctx context.Context) error

	// Rollback discards the open transaction. It is a no-op when none is open.
	Rollback(ctx context.Context) error

	// Close rolls back anything uncommitted and releases the connection.
	// Treat Close as "call once".
	Close() error
}

// ---- gateway factories ----

// Factory opens a Gateway for a backend kind.
type Factory func(ctx context.Context, cfg Config) (Gateway, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The kind string becomes the lookup key used by Open.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered. Registering the
//     same kind twice is a wiring bug and fails fast.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// Open constructs a Gateway using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns (bad DSN, connection
//     refused, authentication failure).
func Open(ctx context.Context, cfg Config) (Gateway, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
