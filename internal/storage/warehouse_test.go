package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// testDialect is a minimal Dialect for SQL builder tests.
type testDialect struct{}

func (testDialect) Name() string                         { return "test" }
func (testDialect) Ident(name string) string             { return `"` + name + `"` }
func (testDialect) Placeholder(n int) string             { return fmt.Sprintf("$%d", n) }
func (testDialect) ColumnDef(c ColumnSpec) string        { return c.Name + " " + string(c.Type) }
func (d testDialect) DropTable(t string) string          { return DropTableIfExists(d, t) }
func (testDialect) EpochMillis(expr string) string       { return expr }
func (testDialect) DatePart(p DatePart, e string) string { return string(p) + "(" + e + ")" }
func (testDialect) ColumnsQuery(table string) string     { return table }

func (testDialect) CopyStatement(CopySpec) (string, bool) { return "", false }

func (d testDialect) CreateTable(t string, defs []string) string {
	return CreateTableIfNotExists(d, t, defs)
}

func TestRegister_PanicsOnInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		kind string
		f    factory
	}{
		{name: "empty_kind", kind: "", f: func(context.Context, Config) (Warehouse, error) { return nil, nil }},
		{name: "nil_factory", kind: "x-nil", f: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("Register(%q) did not panic", tc.kind)
				}
			}()
			Register(tc.kind, tc.f)
		})
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	f := func(context.Context, Config) (Warehouse, error) { return nil, nil }
	Register("test-dup", f)

	defer func() {
		if recover() == nil {
			t.Fatalf("second Register did not panic")
		}
	}()
	Register("test-dup", f)
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("New(empty kind) err=nil, want error")
	}

	_, err := New(context.Background(), Config{Kind: "no-such-warehouse"})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("New(unknown) err=%v, want ErrUnknownKind", err)
	}
}

func TestNew_DispatchesToFactory(t *testing.T) {
	var got Config
	Register("test-dispatch", func(ctx context.Context, cfg Config) (Warehouse, error) {
		got = cfg
		return nil, errors.New("dial failed")
	})

	_, err := New(context.Background(), Config{Kind: "test-dispatch", DSN: "dsn://x"})
	if err == nil || err.Error() != "dial failed" {
		t.Fatalf("New err=%v, want factory error", err)
	}
	if got.DSN != "dsn://x" {
		t.Fatalf("factory cfg.DSN=%q, want %q", got.DSN, "dsn://x")
	}
}

func TestBuildInsertSQL_PlaceholdersAndArgs(t *testing.T) {
	t.Parallel()

	sql, args, err := BuildInsertSQL(testDialect{}, "staging_songs",
		[]string{"song_id", "year"},
		[][]any{{"S1", int64(2001)}, {"S2", nil}},
	)
	if err != nil {
		t.Fatalf("BuildInsertSQL: %v", err)
	}

	want := `INSERT INTO "staging_songs" ("song_id", "year") VALUES ($1, $2), ($3, $4)`
	if sql != want {
		t.Fatalf("sql=%q\nwant %q", sql, want)
	}
	if !reflect.DeepEqual(args, []any{"S1", int64(2001), "S2", nil}) {
		t.Fatalf("args=%v", args)
	}
}

func TestBuildInsertSQL_RejectsRaggedRows(t *testing.T) {
	t.Parallel()

	_, _, err := BuildInsertSQL(testDialect{}, "t", []string{"a", "b"}, [][]any{{1}})
	if err == nil || !strings.Contains(err.Error(), "row 0") {
		t.Fatalf("err=%v, want row length error", err)
	}
	if _, _, err := BuildInsertSQL(testDialect{}, "t", nil, nil); err == nil {
		t.Fatalf("err=nil for empty columns")
	}
}

func TestChunkRows(t *testing.T) {
	t.Parallel()

	rows := make([][]any, 7)
	for i := range rows {
		rows[i] = []any{i, i, i}
	}

	tests := []struct {
		name      string
		maxParams int
		want      []int
	}{
		{name: "fits_in_one", maxParams: 100, want: []int{7}},
		{name: "two_rows_per_chunk", maxParams: 6, want: []int{2, 2, 2, 1}},
		{name: "at_least_one_row", maxParams: 2, want: []int{1, 1, 1, 1, 1, 1, 1}},
		{name: "unlimited", maxParams: 0, want: []int{7}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got []int
			for _, c := range ChunkRows(rows, 3, tc.maxParams) {
				got = append(got, len(c))
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("chunk sizes=%v, want %v", got, tc.want)
			}
		})
	}

	if ChunkRows(nil, 3, 10) != nil {
		t.Fatalf("ChunkRows(nil) != nil")
	}
}

func TestCreateAndDropStatements(t *testing.T) {
	t.Parallel()

	d := testDialect{}
	if got := d.DropTable("time"); got != `DROP TABLE IF EXISTS "time";` {
		t.Fatalf("DropTable=%q", got)
	}
	got := d.CreateTable("time", []string{"start_time timestamp", "hour int"})
	want := "CREATE TABLE IF NOT EXISTS \"time\" (\n    start_time timestamp,\n    hour int\n);"
	if got != want {
		t.Fatalf("CreateTable=%q\nwant %q", got, want)
	}
}

func TestQuoteLiteral(t *testing.T) {
	t.Parallel()

	if got := QuoteLiteral("o'brien"); got != "'o''brien'" {
		t.Fatalf("QuoteLiteral=%q", got)
	}
}
