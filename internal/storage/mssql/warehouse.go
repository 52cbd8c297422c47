package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"

	"dwh/internal/storage"
)

const (
	// SQL Server accepts at most 2100 parameters per request and 1000 rows
	// per VALUES list.
	maxParams = 2000
	maxRows   = 1000
)

// Warehouse implements storage.Warehouse for SQL Server through the
// "sqlserver" database/sql driver.
type Warehouse struct {
	db dbConn
}

func init() {
	storage.Register("sqlserver", New)
}

// New opens a single-connection pool and validates connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	raw.SetMaxOpenConns(1)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("sqlserver: connect: %w", err)
	}
	return &Warehouse{db: raw}, nil
}

func (w *Warehouse) Dialect() storage.Dialect { return Dialect{} }

func (w *Warehouse) Ping(ctx context.Context) error {
	_, err := w.db.ExecContext(ctx, "SELECT 1;")
	return err
}

func (w *Warehouse) Exec(ctx context.Context, query string) (int64, error) {
	res, err := w.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1, nil
	}
	return n, nil
}

// InsertRows writes rows with chunked multi-row INSERT statements.
func (w *Warehouse) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	limit := maxParams
	if len(columns)*maxRows < limit {
		limit = len(columns) * maxRows
	}

	var total int64
	for _, chunk := range storage.ChunkRows(rows, len(columns), limit) {
		q, args, err := storage.BuildInsertSQL(Dialect{}, table, columns, chunk)
		if err != nil {
			return total, err
		}
		res, err := w.db.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (w *Warehouse) QueryRows(ctx context.Context, query string) ([][]any, error) {
	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return storage.ScanRows(rows, nil)
}

func (w *Warehouse) Close() error { return w.db.Close() }

// dbConn is the subset of *sql.DB this package needs; tests substitute it.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Close() error
}

var (
	_ storage.Warehouse = (*Warehouse)(nil)
	_ dbConn            = (*sql.DB)(nil)
)
