package postgres

import (
	"strings"
	"testing"

	"dwh/internal/storage"
)

func TestRedshift_CopyStatement(t *testing.T) {
	t.Parallel()

	stmt, ok := Redshift{}.CopyStatement(storage.CopySpec{
		Table:   "staging_events",
		Source:  "s3://udacity-dend/log_data",
		IAMRole: "arn:aws:iam::123456789012:role/dwhRole",
		Format:  "s3://udacity-dend/log_json_path.json",
		Region:  "us-west-2",
	})
	if !ok {
		t.Fatalf("Redshift must support native COPY")
	}

	want := `COPY "staging_events" FROM 's3://udacity-dend/log_data'
CREDENTIALS 'aws_iam_role=arn:aws:iam::123456789012:role/dwhRole'
FORMAT AS JSON 's3://udacity-dend/log_json_path.json'
REGION 'us-west-2';`
	if stmt != want {
		t.Fatalf("copy statement:\n%s\nwant:\n%s", stmt, want)
	}
}

func TestRedshift_CopyStatement_EscapesLiterals(t *testing.T) {
	t.Parallel()

	stmt, _ := Redshift{}.CopyStatement(storage.CopySpec{
		Table: "staging_songs", Source: "s3://b/it's", Format: "auto", Region: "r",
	})
	if !strings.Contains(stmt, "FROM 's3://b/it''s'") {
		t.Fatalf("source literal not escaped: %s", stmt)
	}
}

func TestPostgres_HasNoNativeCopy(t *testing.T) {
	t.Parallel()

	if _, ok := (Postgres{}).CopyStatement(storage.CopySpec{Table: "x"}); ok {
		t.Fatalf("Postgres must load staging tables client-side")
	}
}

func TestColumnDef(t *testing.T) {
	t.Parallel()

	identity := storage.ColumnSpec{Name: "songplay_id", Type: storage.TypeInt, Identity: true}
	startTime := storage.ColumnSpec{Name: "start_time", Type: storage.TypeTimestamp, NotNull: true}
	userID := storage.ColumnSpec{Name: "user_id", Type: storage.TypeInt, PrimaryKey: true}
	name := storage.ColumnSpec{Name: "name", Type: storage.TypeVarchar}

	tests := []struct {
		name string
		d    storage.Dialect
		col  storage.ColumnSpec
		want string
	}{
		{name: "redshift_identity", d: Redshift{}, col: identity, want: `"songplay_id" INT IDENTITY(0,1) PRIMARY KEY`},
		{name: "postgres_identity", d: Postgres{}, col: identity, want: `"songplay_id" INT GENERATED BY DEFAULT AS IDENTITY (MINVALUE 0 START WITH 0) PRIMARY KEY`},
		{name: "not_null_timestamp", d: Redshift{}, col: startTime, want: `"start_time" TIMESTAMP NOT NULL`},
		{name: "primary_key", d: Postgres{}, col: userID, want: `"user_id" INT PRIMARY KEY`},
		{name: "varchar", d: Redshift{}, col: name, want: `"name" VARCHAR`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.d.ColumnDef(tc.col); got != tc.want {
				t.Fatalf("ColumnDef=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestDatePart_WeekdayDiffersByDialect(t *testing.T) {
	t.Parallel()

	if got := (Redshift{}).DatePart(storage.PartWeekday, "start_time"); got != "EXTRACT(weekday FROM start_time)" {
		t.Fatalf("redshift weekday=%q", got)
	}
	if got := (Postgres{}).DatePart(storage.PartWeekday, "start_time"); got != "CAST(EXTRACT(dow FROM start_time) AS INT)" {
		t.Fatalf("postgres weekday=%q", got)
	}
}

func TestEpochMillis_KeepsMilliseconds(t *testing.T) {
	t.Parallel()

	got := Redshift{}.EpochMillis(`e."ts"`)
	if !strings.Contains(got, "/ 1000.0") {
		t.Fatalf("EpochMillis must use fractional division, got %q", got)
	}
}

func TestColumnsQuery_QuotesTableLiteral(t *testing.T) {
	t.Parallel()

	q := Postgres{}.ColumnsQuery("time")
	if !strings.Contains(q, "table_name = 'time'") || !strings.Contains(q, "ORDER BY ordinal_position") {
		t.Fatalf("ColumnsQuery=%q", q)
	}
}
