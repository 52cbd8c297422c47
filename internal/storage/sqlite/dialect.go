package sqlite

import (
	"fmt"
	"strings"

	"dwh/internal/storage"
)

// Dialect renders SQL for SQLite.
//
// SQLite has no native timestamp type. Timestamps are TEXT in the form
// "YYYY-MM-DD HH:MM:SS.SSS" (UTC), which strftime understands and which sorts
// chronologically, and the columns are declared TIMESTAMP so readers can tell
// them apart.
type Dialect struct{}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func (Dialect) Name() string             { return "sqlite" }
func (Dialect) Ident(name string) string { return sqlIdent(name) }
func (Dialect) Placeholder(int) string   { return "?" }

func (Dialect) ColumnDef(c storage.ColumnSpec) string {
	if c.Identity {
		return sqlIdent(c.Name) + " INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	var typ string
	switch c.Type {
	case storage.TypeInt, storage.TypeBigInt:
		typ = "INTEGER"
	case storage.TypeFloat:
		typ = "REAL"
	case storage.TypeTimestamp:
		typ = "TIMESTAMP"
	default:
		typ = "TEXT"
	}

	s := sqlIdent(c.Name) + " " + typ
	if c.NotNull {
		s += " NOT NULL"
	}
	if c.PrimaryKey {
		s += " PRIMARY KEY"
	}
	return s
}

func (d Dialect) DropTable(table string) string { return storage.DropTableIfExists(d, table) }

func (d Dialect) CreateTable(table string, defs []string) string {
	return storage.CreateTableIfNotExists(d, table, defs)
}

func (Dialect) EpochMillis(expr string) string {
	return fmt.Sprintf("strftime('%%Y-%%m-%%d %%H:%%M:%%f', %s / 1000.0, 'unixepoch')", expr)
}

func (Dialect) DatePart(part storage.DatePart, expr string) string {
	switch part {
	case storage.PartWeek:
		// ISO week: the week containing the Thursday of expr's week.
		return fmt.Sprintf("CAST((strftime('%%j', date(%s, '-3 days', 'weekday 4')) - 1) / 7 + 1 AS INTEGER)", expr)
	default:
		return fmt.Sprintf("CAST(strftime('%s', %s) AS INTEGER)", strftimeField(part), expr)
	}
}

func strftimeField(part storage.DatePart) string {
	switch part {
	case storage.PartHour:
		return "%H"
	case storage.PartDay:
		return "%d"
	case storage.PartMonth:
		return "%m"
	case storage.PartYear:
		return "%Y"
	case storage.PartWeekday:
		return "%w"
	default:
		panic(fmt.Sprintf("sqlite: unsupported date part %q", part))
	}
}

func (Dialect) CopyStatement(storage.CopySpec) (string, bool) { return "", false }

func (Dialect) ColumnsQuery(table string) string {
	return "SELECT name FROM pragma_table_info(" + storage.QuoteLiteral(table) + ") ORDER BY cid;"
}

var _ storage.Dialect = Dialect{}
