package queries

import (
	"fmt"
	"strings"

	"dwh/internal/storage"
)

// Stage names, also used as the prefix of metric step names.
const (
	StageDrop   = "drop"
	StageCreate = "create"
	StageCopy   = "copy"
	StageInsert = "insert"
)

// Statement is one SQL statement the pipeline runs and commits on its own.
type Statement struct {
	Stage string
	Table string
	SQL   string
}

// Step returns "<stage>_<table>", the name used in logs and metrics.
func (s Statement) Step() string { return s.Stage + "_" + s.Table }

// DropTables renders DROP TABLE IF EXISTS for every table, in order.
func DropTables(d storage.Dialect) []Statement {
	out := make([]Statement, 0, len(tables))
	for _, t := range tables {
		out = append(out, Statement{Stage: StageDrop, Table: t.Name, SQL: d.DropTable(t.Name)})
	}
	return out
}

// CreateTables renders an idempotent CREATE TABLE for every table, in order.
func CreateTables(d storage.Dialect) []Statement {
	out := make([]Statement, 0, len(tables))
	for _, t := range tables {
		defs := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			defs = append(defs, d.ColumnDef(c))
		}
		out = append(out, Statement{Stage: StageCreate, Table: t.Name, SQL: d.CreateTable(t.Name, defs)})
	}
	return out
}

// Load describes how one staging table is filled from object storage.
type Load struct {
	Table  string
	Source string
	// Format is "auto", "auto ignorecase" or the URI of a JSONPaths file.
	Format string
}

// Sources holds the object storage locations of the two input partitions.
type Sources struct {
	LogData      string
	LogJSONPath  string
	SongData     string
	SongJSONPath string // empty means "auto"
}

// StagingLoads returns the two staging loads, events first.
func StagingLoads(src Sources) []Load {
	songFormat := src.SongJSONPath
	if songFormat == "" {
		songFormat = "auto"
	}
	return []Load{
		{Table: StagingEvents, Source: src.LogData, Format: src.LogJSONPath},
		{Table: StagingSongs, Source: src.SongData, Format: songFormat},
	}
}

// CopyStatement renders the warehouse-native bulk import for l. ok is false
// when the dialect has none.
func CopyStatement(d storage.Dialect, l Load, iamRole, region string) (Statement, bool) {
	sql, ok := d.CopyStatement(storage.CopySpec{
		Table:   l.Table,
		Source:  l.Source,
		IAMRole: iamRole,
		Format:  l.Format,
		Region:  region,
	})
	if !ok {
		return Statement{}, false
	}
	return Statement{Stage: StageCopy, Table: l.Table, SQL: sql}, true
}

// InsertTables renders the five INSERT ... SELECT statements. songplays comes
// before time because time is projected from it.
func InsertTables(d storage.Dialect) []Statement {
	return []Statement{
		{Stage: StageInsert, Table: Songplays, SQL: insertSongplays(d)},
		{Stage: StageInsert, Table: Users, SQL: insertSelectDistinct(d, Users, StagingEvents, "userid",
			[]string{"user_id", "first_name", "last_name", "gender", "level"},
			[]string{"userid", "firstname", "lastname", "gender", "level"})},
		{Stage: StageInsert, Table: Songs, SQL: insertSelectDistinct(d, Songs, StagingSongs, "song_id",
			[]string{"song_id", "title", "artist_id", "year", "duration"},
			[]string{"song_id", "title", "artist_id", "year", "duration"})},
		{Stage: StageInsert, Table: Artists, SQL: insertSelectDistinct(d, Artists, StagingSongs, "artist_id",
			[]string{"artist_id", "name", "location", "latitude", "longitude"},
			[]string{"artist_id", "artist_name", "artist_location", "artist_latitude", "artist_longitude"})},
		{Stage: StageInsert, Table: Time, SQL: insertTime(d)},
	}
}

func identList(d storage.Dialect, names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = d.Ident(n)
	}
	return strings.Join(parts, ", ")
}

func insertSongplays(d storage.Dialect) string {
	target := []string{"start_time", "user_id", "level", "song_id", "artist_id", "session_id", "location", "user_agent"}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s)\n", d.Ident(Songplays), identList(d, target))
	b.WriteString("SELECT\n")
	fmt.Fprintf(&b, "    %s AS %s,\n", d.EpochMillis("e."+d.Ident("ts")), d.Ident("start_time"))
	src := []string{"e." + d.Ident("userid"), "e." + d.Ident("level"), "s." + d.Ident("song_id"),
		"s." + d.Ident("artist_id"), "e." + d.Ident("sessionid"), "e." + d.Ident("location"),
		"e." + d.Ident("useragent")}
	b.WriteString("    " + strings.Join(src, ",\n    ") + "\n")
	fmt.Fprintf(&b, "FROM %s e\n", d.Ident(StagingEvents))
	fmt.Fprintf(&b, "LEFT JOIN %s s\n", d.Ident(StagingSongs))
	fmt.Fprintf(&b, "    ON e.%s = s.%s\n", d.Ident("song"), d.Ident("title"))
	fmt.Fprintf(&b, "    AND e.%s = s.%s\n", d.Ident("artist"), d.Ident("artist_name"))
	fmt.Fprintf(&b, "WHERE e.%s = 'NextSong';", d.Ident("page"))
	return b.String()
}

// insertSelectDistinct renders the dimension loads. Rows are deduplicated by
// the full selected tuple, not by the key.
func insertSelectDistinct(d storage.Dialect, table, from, key string, target, source []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s)\n", d.Ident(table), identList(d, target))
	fmt.Fprintf(&b, "SELECT DISTINCT %s\n", identList(d, source))
	fmt.Fprintf(&b, "FROM %s\n", d.Ident(from))
	fmt.Fprintf(&b, "WHERE %s IS NOT NULL;", d.Ident(key))
	return b.String()
}

func insertTime(d storage.Dialect) string {
	parts := []storage.DatePart{
		storage.PartHour, storage.PartDay, storage.PartWeek,
		storage.PartMonth, storage.PartYear, storage.PartWeekday,
	}
	startTime := d.Ident("start_time")

	target := []string{"start_time", "hour", "day", "week", "month", "year", "weekday"}
	exprs := []string{startTime}
	for _, p := range parts {
		exprs = append(exprs, d.DatePart(p, startTime))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s)\n", d.Ident(Time), identList(d, target))
	b.WriteString("SELECT DISTINCT\n    " + strings.Join(exprs, ",\n    ") + "\n")
	fmt.Fprintf(&b, "FROM %s;", d.Ident(Songplays))
	return b.String()
}
