package storage

import (
	"fmt"
	"strings"
)

// BuildInsertSQL constructs a single multi-row INSERT statement and its args.
//
// It is pure and deterministic, so placeholder numbering can be unit tested
// without a database.
//
// Constraints:
//   - columns must be non-empty.
//   - every row must have the same length as columns.
func BuildInsertSQL(d Dialect, table string, columns []string, rows [][]any) (string, []any, error) {
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("insert %s: columns is empty", table)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.Ident(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Ident(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("insert %s: row %d has %d values, want %d", table, i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args, nil
}

// ChunkRows splits rows so that no chunk binds more than maxParams parameters.
// A chunk always holds at least one row.
func ChunkRows(rows [][]any, columns int, maxParams int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	per := len(rows)
	if columns > 0 && maxParams > 0 {
		per = maxParams / columns
		if per < 1 {
			per = 1
		}
	}

	out := make([][][]any, 0, (len(rows)+per-1)/per)
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}

// DropTableIfExists renders "DROP TABLE IF EXISTS <table>;" for dialects that
// support the IF EXISTS form.
func DropTableIfExists(d Dialect, table string) string {
	return "DROP TABLE IF EXISTS " + d.Ident(table) + ";"
}

// CreateTableIfNotExists renders a CREATE TABLE IF NOT EXISTS statement with
// one column definition per line.
func CreateTableIfNotExists(d Dialect, table string, columnDefs []string) string {
	return "CREATE TABLE IF NOT EXISTS " + d.Ident(table) + " (\n    " +
		strings.Join(columnDefs, ",\n    ") + "\n);"
}

// QuoteLiteral renders s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
