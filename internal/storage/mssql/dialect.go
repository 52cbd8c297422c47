package mssql

import (
	"fmt"
	"strings"

	"dwh/internal/storage"
)

// Dialect renders SQL for Microsoft SQL Server (2016 or newer).
type Dialect struct{}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlType maps a logical column type. Primary key strings use a bounded
// NVARCHAR because index keys cannot be NVARCHAR(MAX).
func mssqlType(c storage.ColumnSpec) string {
	switch c.Type {
	case storage.TypeInt:
		return "INT"
	case storage.TypeBigInt:
		return "BIGINT"
	case storage.TypeFloat:
		return "FLOAT"
	case storage.TypeTimestamp:
		return "DATETIME2(3)"
	default:
		if c.PrimaryKey {
			return "NVARCHAR(450)"
		}
		return "NVARCHAR(MAX)"
	}
}

func (Dialect) Name() string             { return "sqlserver" }
func (Dialect) Ident(name string) string { return mssqlIdent(name) }
func (Dialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

func (Dialect) ColumnDef(c storage.ColumnSpec) string {
	if c.Identity {
		return mssqlIdent(c.Name) + " INT IDENTITY(0,1) PRIMARY KEY"
	}

	var b strings.Builder
	b.WriteString(mssqlIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(mssqlType(c))
	if c.NotNull || c.PrimaryKey {
		b.WriteString(" NOT NULL")
	}
	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	return b.String()
}

func (d Dialect) DropTable(table string) string { return storage.DropTableIfExists(d, table) }

// CreateTable wraps CREATE TABLE in an OBJECT_ID guard; T-SQL has no
// CREATE TABLE IF NOT EXISTS.
func (Dialect) CreateTable(table string, defs []string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (\n    %s\n); END;",
		strings.ReplaceAll(table, "'", "''"),
		mssqlIdent(table),
		strings.Join(defs, ",\n    "),
	)
}

// EpochMillis splits the value into seconds and milliseconds because DATEADD
// takes an INT and epoch milliseconds overflow it.
func (Dialect) EpochMillis(expr string) string {
	return fmt.Sprintf(
		"DATEADD(millisecond, CAST(%[1]s %% 1000 AS INT), DATEADD(second, CAST(%[1]s / 1000 AS INT), CAST('1970-01-01' AS DATETIME2(3))))",
		expr,
	)
}

func (Dialect) DatePart(part storage.DatePart, expr string) string {
	switch part {
	case storage.PartWeek:
		return fmt.Sprintf("DATEPART(iso_week, %s)", expr)
	case storage.PartWeekday:
		// Normalize to 0 = Sunday whatever SET DATEFIRST says.
		return fmt.Sprintf("((DATEPART(weekday, %s) + @@DATEFIRST - 1) %% 7)", expr)
	default:
		return fmt.Sprintf("DATEPART(%s, %s)", part, expr)
	}
}

func (Dialect) CopyStatement(storage.CopySpec) (string, bool) { return "", false }

func (Dialect) ColumnsQuery(table string) string {
	return "SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS" +
		" WHERE TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_NAME = " + storage.QuoteLiteral(table) +
		" ORDER BY ORDINAL_POSITION;"
}

var _ storage.Dialect = Dialect{}
