package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a Store.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Store is the backend-agnostic handle the import core talks to.
//
// IMPORTANT: a Store owns exactly one connection for the whole run. Backends
// cap their pools at one connection so reads, snapshots and writes all observe
// the same session. It is not safe for concurrent use.
type Store interface {
	// Close releases the connection. Call once at the end of the run.
	Close()

	// TableExists reports whether table is present in the current schema.
	TableExists(ctx context.Context, table string) (bool, error)

	// ColumnsOf returns the live column set of table (lowercase names).
	ColumnsOf(ctx context.Context, table string) (map[string]struct{}, error)

	// SelectKeyValue returns NormalizeKey(keyColumn) -> valueColumn for the whole table.
	// Used for the natural-key -> surrogate-id lookups.
	SelectKeyValue(ctx context.Context, table, keyColumn, valueColumn string) (map[string]int64, error)

	// SelectRows returns every row of table projected to columns, in column order.
	// Used for existing-key snapshots of tables without store-enforced uniqueness.
	SelectRows(ctx context.Context, table string, columns []string) ([][]any, error)

	// Begin opens the transaction a single table write runs in.
	Begin(ctx context.Context) (Tx, error)

	// Truncate empties tables (given in dependency order, parents first) in one transaction.
	Truncate(ctx context.Context, tables []string) error
}

// Tx is one table write. Commit or Rollback must be called exactly once;
// Rollback after Commit is a no-op so callers can defer it.
type Tx interface {
	// Insert performs a bulk insert described by spec and returns the rows affected.
	// A uniqueness failure is reported as ErrConstraintViolation.
	Insert(ctx context.Context, spec InsertSpec) (int64, error)

	// InsertSkippingDuplicate inserts one row inside a savepoint. A uniqueness
	// violation rolls back to the savepoint and returns (false, nil) so the
	// surrounding transaction stays usable.
	InsertSkippingDuplicate(ctx context.Context, table string, columns []string, row []any) (bool, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f factory) {
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

// Kinds lists the registered backend kinds, sorted.
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

// New opens a Store using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever the factory returns; backends wrap dial/ping failures
//     with ErrConnectionUnavailable.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
