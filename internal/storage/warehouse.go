package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownKind is returned by New when no backend is registered for a kind.
var ErrUnknownKind = errors.New("storage: unknown warehouse kind")

// Config is the minimal configuration needed to open a Warehouse.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// DatePart is a calendar field extracted from a timestamp.
type DatePart string

const (
	PartHour    DatePart = "hour"
	PartDay     DatePart = "day"
	PartWeek    DatePart = "week"    // ISO week of year
	PartMonth   DatePart = "month"   // 1..12
	PartYear    DatePart = "year"    // four digits
	PartWeekday DatePart = "weekday" // 0 = Sunday .. 6 = Saturday
)

// CopySpec describes one warehouse-native bulk import from object storage.
type CopySpec struct {
	Table   string
	Source  string // object storage URI (prefix)
	IAMRole string
	// Format is "auto", "auto ignorecase" or the URI of a JSONPaths file.
	Format string
	Region string
}

// Dialect renders the warehouse-specific pieces of otherwise static SQL.
//
// Implementations must be pure: they never touch a connection, so statement
// rendering can be unit tested without a database.
type Dialect interface {
	Name() string

	// Ident quotes an identifier.
	Ident(name string) string

	// Placeholder returns the bind parameter marker for the n-th (1-based) argument.
	Placeholder(n int) string

	// ColumnDef renders "<ident> <type> [constraints]" for a CREATE TABLE body.
	ColumnDef(c ColumnSpec) string

	// DropTable renders an idempotent DROP TABLE statement.
	DropTable(table string) string

	// CreateTable renders an idempotent CREATE TABLE statement.
	CreateTable(table string, columnDefs []string) string

	// EpochMillis converts an expression holding epoch milliseconds to a
	// timestamp, keeping the milliseconds.
	EpochMillis(expr string) string

	// DatePart extracts an integer calendar field from a timestamp expression.
	DatePart(part DatePart, expr string) string

	// CopyStatement returns the native bulk-import statement for spec. ok is
	// false when the warehouse cannot read object storage by itself; callers
	// then load rows client-side through Warehouse.InsertRows.
	CopyStatement(spec CopySpec) (stmt string, ok bool)

	// ColumnsQuery returns a query yielding one row per column of table, with
	// the column name in the first field, in ordinal order.
	ColumnsQuery(table string) string
}

// Warehouse is a single-connection SQL session against the target warehouse.
//
// Every Exec runs in autocommit mode: a statement is committed as soon as it
// returns, and nothing wraps consecutive statements in a transaction.
type Warehouse interface {
	Dialect() Dialect

	// Ping runs a trivial liveness query.
	Ping(ctx context.Context) error

	// Exec runs one statement and returns the number of affected rows when the
	// driver reports it (-1 otherwise).
	Exec(ctx context.Context, query string) (int64, error)

	// InsertRows writes rows positionally aligned with columns into table.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// QueryRows runs a query and materializes every row.
	QueryRows(ctx context.Context, query string) ([][]any, error)

	// Close releases the connection. Call once.
	Close() error
}

type factory func(ctx context.Context, cfg Config) (Warehouse, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a warehouse backend under a kind (e.g. "redshift", "sqlite").
//
// Call Register from an init() function in a backend package. Registering the
// same kind twice, an empty kind or a nil factory panics.
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

// New opens a Warehouse using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty.
//   - Returns an error wrapping ErrUnknownKind if cfg.Kind is not registered.
//   - Returns whatever error the registered factory returns (typically a
//     connection failure).
func New(ctx context.Context, cfg Config) (Warehouse, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing warehouse kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("%w %q (registered: %s)", ErrUnknownKind, cfg.Kind, strings.Join(Kinds(), ", "))
	}
	return f(ctx, cfg)
}

// Kinds lists registered backend kinds in sorted order.
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
