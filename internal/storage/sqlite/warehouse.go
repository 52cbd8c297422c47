package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dwh/internal/storage"
)

// maxParams is SQLITE_MAX_VARIABLE_NUMBER for SQLite >= 3.32.
const maxParams = 32766

// Warehouse implements storage.Warehouse for SQLite.
//
// The pool is pinned to a single connection: the pipeline is strictly
// sequential, and ":memory:" databases are per-connection.
type Warehouse struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.DSN, err)
	}
	return &Warehouse{db: db}, nil
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

func (w *Warehouse) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	var total int64
	for _, chunk := range storage.ChunkRows(rows, len(columns), maxParams) {
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
	return storage.ScanRows(rows, normalizeTime)
}

func (w *Warehouse) Close() error { return w.db.Close() }

// normalizeTime turns TEXT values of TIMESTAMP columns into time.Time, so
// callers see the same type they would get from Postgres.
func normalizeTime(ct *sql.ColumnType, v any) (any, error) {
	s, ok := v.(string)
	if !ok || !strings.EqualFold(ct.DatabaseTypeName(), "TIMESTAMP") {
		return v, nil
	}
	return parseSQLiteTime(s)
}

// parseSQLiteTime parses timestamps returned by SQLite into time.Time.
//
// Supported formats:
//   - "2006-01-02 15:04:05.000" (what strftime('%Y-%m-%d %H:%M:%f') writes; UTC)
//   - RFC3339Nano / RFC3339
//   - "2006-01-02 15:04:05Z07:00" with optional fractional seconds
func parseSQLiteTime(s string) (time.Time, error) {
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
			// Fractional seconds are accepted after the seconds field even
			// though the layout does not name them.
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

var _ storage.Warehouse = (*Warehouse)(nil)
