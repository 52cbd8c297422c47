package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"dwh/internal/storage"
)

// maxParams is the Postgres bind parameter limit per statement.
const maxParams = 65535

/*
Warehouse implements storage.Warehouse over a single pgx connection.

It serves two kinds:
  - "redshift": simple query protocol, rows written with multi-row INSERT
    (Redshift has no COPY FROM STDIN).
  - "postgres": extended protocol, rows written with COPY FROM STDIN.

Statements outside an explicit transaction commit on return, which gives the
pipeline its per-statement commit semantics.
*/
type Warehouse struct {
	conn    *pgx.Conn
	dialect storage.Dialect
	copyIn  bool
}

func init() {
	storage.Register("redshift", NewRedshift)
	storage.Register("postgres", NewPostgres)
}

// NewRedshift connects to Redshift.
func NewRedshift(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
	pc, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("redshift: parse dsn: %w", err)
	}
	// Redshift rejects several catalog queries the extended protocol relies on
	// for type discovery.
	pc.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := pgx.ConnectConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("redshift: connect: %w", err)
	}
	return &Warehouse{conn: conn, dialect: Redshift{}}, nil
}

// NewPostgres connects to PostgreSQL.
func NewPostgres(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
	conn, err := pgx.Connect(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &Warehouse{conn: conn, dialect: Postgres{}, copyIn: true}, nil
}

func (w *Warehouse) Dialect() storage.Dialect { return w.dialect }

func (w *Warehouse) Ping(ctx context.Context) error {
	_, err := w.conn.Exec(ctx, "SELECT 1;")
	return err
}

func (w *Warehouse) Exec(ctx context.Context, query string) (int64, error) {
	tag, err := w.conn.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertRows writes rows with COPY FROM STDIN on Postgres and with chunked
// multi-row INSERT statements on Redshift.
func (w *Warehouse) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	if w.copyIn {
		n, err := w.conn.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
		if err != nil {
			return n, fmt.Errorf("copy into %s: %w", table, err)
		}
		return n, nil
	}

	var total int64
	for _, chunk := range storage.ChunkRows(rows, len(columns), maxParams) {
		sql, args, err := storage.BuildInsertSQL(w.dialect, table, columns, chunk)
		if err != nil {
			return total, err
		}
		tag, err := w.conn.Exec(ctx, sql, args...)
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", table, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func (w *Warehouse) QueryRows(ctx context.Context, query string) ([][]any, error) {
	rows, err := w.conn.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

// Close closes the connection, giving the server a few seconds to acknowledge.
func (w *Warehouse) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return w.conn.Close(ctx)
}

var _ storage.Warehouse = (*Warehouse)(nil)
