package postgres

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/jackc/pgx/v5"

	"dwh/internal/storage"
)

// Redshift renders SQL for Amazon Redshift.
//
// Redshift speaks the Postgres wire protocol but differs in DDL (IDENTITY,
// unenforced primary keys) and is the only dialect with a native COPY from S3.
type Redshift struct{}

// Postgres renders SQL for PostgreSQL. It has no object-store COPY, so staging
// tables are loaded client-side through the COPY FROM STDIN protocol.
type Postgres struct{}

var tplCopy = template.Must(template.New("copy").Funcs(template.FuncMap{
	"Ident":   pgIdent,
	"Literal": storage.QuoteLiteral,
}).Parse(`COPY {{ Ident .Table }} FROM {{ Literal .Source }}
CREDENTIALS {{ Literal (printf "aws_iam_role=%s" .IAMRole) }}
FORMAT AS JSON {{ Literal .Format }}
REGION {{ Literal .Region }};`))

func pgIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func pgType(t storage.ColumnType) string {
	switch t {
	case storage.TypeInt:
		return "INT"
	case storage.TypeBigInt:
		return "BIGINT"
	case storage.TypeFloat:
		return "FLOAT"
	case storage.TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

func constraints(c storage.ColumnSpec) string {
	s := ""
	if c.NotNull {
		s += " NOT NULL"
	}
	if c.PrimaryKey {
		s += " PRIMARY KEY"
	}
	return s
}

func columnsQuery(table string) string {
	return "SELECT column_name FROM information_schema.columns" +
		" WHERE table_schema = current_schema() AND table_name = " + storage.QuoteLiteral(table) +
		" ORDER BY ordinal_position;"
}

func epochMillis(expr string) string {
	return fmt.Sprintf("TIMESTAMP 'epoch' + %s / 1000.0 * INTERVAL '1 second'", expr)
}

func (Redshift) Name() string             { return "redshift" }
func (Redshift) Ident(name string) string { return pgIdent(name) }
func (Redshift) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (Redshift) ColumnDef(c storage.ColumnSpec) string {
	if c.Identity {
		return pgIdent(c.Name) + " INT IDENTITY(0,1) PRIMARY KEY"
	}
	return pgIdent(c.Name) + " " + pgType(c.Type) + constraints(c)
}

func (d Redshift) DropTable(table string) string { return storage.DropTableIfExists(d, table) }

func (d Redshift) CreateTable(table string, defs []string) string {
	return storage.CreateTableIfNotExists(d, table, defs)
}

func (Redshift) EpochMillis(expr string) string { return epochMillis(expr) }

func (Redshift) DatePart(part storage.DatePart, expr string) string {
	return fmt.Sprintf("EXTRACT(%s FROM %s)", part, expr)
}

func (Redshift) CopyStatement(spec storage.CopySpec) (string, bool) {
	var b bytes.Buffer
	if err := tplCopy.Execute(&b, spec); err != nil {
		// The template only formats strings; an error here is a programming bug.
		panic(fmt.Sprintf("redshift: render copy: %v", err))
	}
	return b.String(), true
}

func (Redshift) ColumnsQuery(table string) string { return columnsQuery(table) }

func (Postgres) Name() string             { return "postgres" }
func (Postgres) Ident(name string) string { return pgIdent(name) }
func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (Postgres) ColumnDef(c storage.ColumnSpec) string {
	if c.Identity {
		return pgIdent(c.Name) + " INT GENERATED BY DEFAULT AS IDENTITY (MINVALUE 0 START WITH 0) PRIMARY KEY"
	}
	return pgIdent(c.Name) + " " + pgType(c.Type) + constraints(c)
}

func (d Postgres) DropTable(table string) string { return storage.DropTableIfExists(d, table) }

func (d Postgres) CreateTable(table string, defs []string) string {
	return storage.CreateTableIfNotExists(d, table, defs)
}

func (Postgres) EpochMillis(expr string) string { return epochMillis(expr) }

func (Postgres) DatePart(part storage.DatePart, expr string) string {
	field := string(part)
	if part == storage.PartWeekday {
		field = "dow"
	}
	return fmt.Sprintf("CAST(EXTRACT(%s FROM %s) AS INT)", field, expr)
}

func (Postgres) CopyStatement(storage.CopySpec) (string, bool) { return "", false }

func (Postgres) ColumnsQuery(table string) string { return columnsQuery(table) }

var (
	_ storage.Dialect = Redshift{}
	_ storage.Dialect = Postgres{}
)
