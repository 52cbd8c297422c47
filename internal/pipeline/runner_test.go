package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"dwh/internal/metrics"
	"dwh/internal/queries"
	"dwh/internal/storage"
	"dwh/internal/storage/postgres"
	"dwh/internal/storage/sqlite"
)

type insertCall struct {
	table   string
	columns []string
	rows    int
}

// fakeWarehouse records statements instead of running them.
type fakeWarehouse struct {
	dialect storage.Dialect

	// failOn makes Exec fail for the first statement containing it.
	failOn string

	// columns answers ColumnsQuery by table name.
	columns map[string][]string

	execs   []string
	inserts []insertCall
}

func (w *fakeWarehouse) Dialect() storage.Dialect       { return w.dialect }
func (w *fakeWarehouse) Ping(ctx context.Context) error { return nil }
func (w *fakeWarehouse) Close() error                   { return nil }

func (w *fakeWarehouse) Exec(ctx context.Context, query string) (int64, error) {
	w.execs = append(w.execs, query)
	if w.failOn != "" && strings.Contains(query, w.failOn) {
		return 0, errors.New("boom")
	}
	return 3, nil
}

func (w *fakeWarehouse) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	w.inserts = append(w.inserts, insertCall{table: table, columns: columns, rows: len(rows)})
	return int64(len(rows)), nil
}

func (w *fakeWarehouse) QueryRows(ctx context.Context, query string) ([][]any, error) {
	for table, cols := range w.columns {
		if w.dialect.ColumnsQuery(table) == query {
			out := make([][]any, len(cols))
			for i, c := range cols {
				out[i] = []any{c}
			}
			return out, nil
		}
	}
	return nil, nil
}

// recorder is a metrics.Backend that keeps counters in memory.
type recorder struct {
	mu       sync.Mutex
	counters map[string]float64
}

func newRecorder() *recorder { return &recorder{counters: map[string]float64{}} }

func (r *recorder) key(name string, l metrics.Labels) string {
	return fmt.Sprintf("%s{step=%s,status=%s,kind=%s}", name, l["step"], l["status"], l["kind"])
}

func (r *recorder) IncCounter(name string, delta float64, l metrics.Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[r.key(name, l)] += delta
}

func (r *recorder) ObserveHistogram(string, float64, metrics.Labels) {}
func (r *recorder) Flush() error                                     { return nil }

func (r *recorder) get(name string, l metrics.Labels) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[r.key(name, l)]
}

func installRecorder(t *testing.T) *recorder {
	t.Helper()
	rec := newRecorder()
	metrics.SetBackend(rec)
	t.Cleanup(func() { metrics.SetBackend(nil) })
	return rec
}

func TestResetSchema_DropsThenCreatesInOrder(t *testing.T) {
	w := &fakeWarehouse{dialect: sqlite.Dialect{}}
	var logs bytes.Buffer
	r := &Runner{Warehouse: w, Logger: log.New(&logs, "", 0)}

	require.NoError(t, r.ResetSchema(context.Background()))
	require.Len(t, w.execs, 14)

	var want []string
	for _, st := range queries.DropTables(sqlite.Dialect{}) {
		want = append(want, st.SQL)
	}
	for _, st := range queries.CreateTables(sqlite.Dialect{}) {
		want = append(want, st.SQL)
	}
	require.Equal(t, want, w.execs)

	require.Contains(t, logs.String(), "stage=drop table=staging_events ok rows=3")
	require.Contains(t, logs.String(), "stage=create ok statements=7")
}

func TestExec_FirstFailureAbortsAndNamesStep(t *testing.T) {
	rec := installRecorder(t)

	w := &fakeWarehouse{dialect: sqlite.Dialect{}, failOn: `CREATE TABLE IF NOT EXISTS "users"`}
	r := &Runner{Warehouse: w}

	err := r.CreateTables(context.Background())
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "create users: "), "err=%v", err)

	// staging_events, staging_songs, songplays succeed; users fails; nothing after.
	require.Len(t, w.execs, 4)
	require.Equal(t, 1.0, rec.get(metrics.StepTotal, metrics.Labels{"step": "create_users", "status": metrics.StatusError}))
	require.Equal(t, 1.0, rec.get(metrics.StepTotal, metrics.Labels{"step": "create_songplays", "status": metrics.StatusOK}))
	require.Zero(t, rec.get(metrics.StepTotal, metrics.Labels{"step": "create_songs", "status": metrics.StatusOK}))
}

func TestInsertTables_SongplaysBeforeTimeAndRowsRecorded(t *testing.T) {
	rec := installRecorder(t)

	w := &fakeWarehouse{dialect: sqlite.Dialect{}}
	r := &Runner{Warehouse: w}
	require.NoError(t, r.InsertTables(context.Background()))
	require.Len(t, w.execs, 5)
	require.Contains(t, w.execs[0], `INSERT INTO "songplays"`)
	require.Contains(t, w.execs[4], `INSERT INTO "time"`)

	for _, table := range []string{"songplays", "users", "songs", "artists", "time"} {
		require.Equal(t, 3.0, rec.get(metrics.RecordsTotal, metrics.Labels{"kind": table}), table)
	}
}

func TestLoadStaging_RedshiftUsesNativeCopy(t *testing.T) {
	w := &fakeWarehouse{dialect: postgres.Redshift{}}
	r := &Runner{Warehouse: w}

	err := r.LoadStaging(context.Background(), LoadOptions{
		Sources: queries.Sources{
			LogData:     "s3://udacity-dend/log_data",
			LogJSONPath: "s3://udacity-dend/log_json_path.json",
			SongData:    "s3://udacity-dend/song_data",
		},
		IAMRole: "arn:aws:iam::1:role/r",
		Region:  "us-west-2",
	})
	require.NoError(t, err)
	require.Len(t, w.execs, 2)
	require.True(t, strings.HasPrefix(w.execs[0], `COPY "staging_events" FROM 's3://udacity-dend/log_data'`), w.execs[0])
	require.Contains(t, w.execs[1], "FORMAT AS JSON 'auto'")
	require.Empty(t, w.inserts, "native COPY must not insert rows client-side")
}

func TestLoadStaging_ClientSideNeedsStore(t *testing.T) {
	w := &fakeWarehouse{dialect: sqlite.Dialect{}}
	r := &Runner{Warehouse: w}

	err := r.LoadStaging(context.Background(), LoadOptions{Sources: queries.Sources{LogData: "x", LogJSONPath: "auto", SongData: "y"}})
	require.ErrorContains(t, err, "copy staging_events: no object store")
}

// memStore is an objectstore.Store over in-memory objects.
type memStore map[string]string

func (m memStore) List(ctx context.Context, uri string) ([]string, error) {
	var out []string
	for k := range m {
		if strings.HasPrefix(k, uri) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m memStore) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	body, ok := m[uri]
	if !ok {
		return nil, fmt.Errorf("%s: not found", uri)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestLoadStaging_ClientSideBatches(t *testing.T) {
	rec := installRecorder(t)

	var songs strings.Builder
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&songs, `{"song_id":"S%d","title":"T%d","artist_id":"A","year":2000,"duration":1.5}`+"\n", i, i)
	}
	store := memStore{
		"mem://log/2018-11-01.json": `{"artist":"Y","song":"X","page":"NextSong","ts":1541990258796,"userId":"39"}`,
		"mem://paths.json":          pathsFor(t, "staging_events"),
		"mem://song/a.json":         songs.String(),
		"mem://song/b.json":         `[{"song_id":"S9"}]`,
	}

	w := &fakeWarehouse{dialect: sqlite.Dialect{}}
	r := &Runner{Warehouse: w, Store: store}
	err := r.LoadStaging(context.Background(), LoadOptions{
		Sources:   queries.Sources{LogData: "mem://log/", LogJSONPath: "mem://paths.json", SongData: "mem://song/"},
		BatchSize: 2,
	})
	require.NoError(t, err)

	var sizes []int
	for _, c := range w.inserts {
		sizes = append(sizes, c.rows)
	}
	// events: 1 row; songs: 5 + 1 rows in batches of 2 across objects.
	require.Equal(t, []int{1, 2, 2, 2}, sizes)
	require.Equal(t, "staging_events", w.inserts[0].table)
	require.Equal(t, "staging_songs", w.inserts[1].table)

	require.Equal(t, 4.0, rec.get(metrics.BatchesTotal, nil))
	require.Equal(t, 6.0, rec.get(metrics.RecordsTotal, metrics.Labels{"kind": "staging_songs"}))
	require.Equal(t, 1.0, rec.get(metrics.StepTotal, metrics.Labels{"step": "copy_staging_songs", "status": metrics.StatusOK}))
}

func TestLoadStaging_ClientSideErrors(t *testing.T) {
	tests := []struct {
		name    string
		store   memStore
		format  string
		wantErr string
	}{
		{
			name:    "empty_prefix",
			store:   memStore{},
			format:  "auto",
			wantErr: "copy staging_events: no objects found under mem://log/",
		},
		{
			name:    "bad_value_names_object_and_record",
			store:   memStore{"mem://log/a.json": "{\"ts\":1}\n{\"ts\":\"soon\"}\n"},
			format:  "auto",
			wantErr: "mem://log/a.json:2: column ts:",
		},
		{
			name:    "malformed_json",
			store:   memStore{"mem://log/a.json": "{\"ts\":1}\n{oops"},
			format:  "auto",
			wantErr: "mem://log/a.json: json: record 2",
		},
		{
			name:    "jsonpaths_count_mismatch",
			store:   memStore{"mem://log/a.json": "{}", "mem://p.json": `{"jsonpaths":["$.a"]}`},
			format:  "mem://p.json",
			wantErr: "1 paths for 18 columns",
		},
		{
			name:    "jsonpaths_missing",
			store:   memStore{"mem://log/a.json": "{}"},
			format:  "mem://nope.json",
			wantErr: "open jsonpaths mem://nope.json",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := &fakeWarehouse{dialect: sqlite.Dialect{}}
			r := &Runner{Warehouse: w, Store: tc.store}
			err := r.LoadStaging(context.Background(), LoadOptions{
				Sources: queries.Sources{LogData: "mem://log/", LogJSONPath: tc.format, SongData: "mem://song/"},
			})
			require.ErrorContains(t, err, tc.wantErr)
			require.True(t, strings.HasPrefix(err.Error(), "copy staging_events: "), "err=%v", err)
		})
	}
}

func TestVerifySchema_ReportsDiffs(t *testing.T) {
	w := &fakeWarehouse{dialect: sqlite.Dialect{}, columns: map[string][]string{}}
	for _, ts := range queries.Tables() {
		w.columns[ts.Name] = ts.ColumnNames()
	}
	delete(w.columns, "time")
	w.columns["users"] = []string{"USER_ID", "first_name", "last_name", "gender", "tier"}

	r := &Runner{Warehouse: w}
	diffs, err := r.VerifySchema(context.Background())
	require.NoError(t, err)
	require.Len(t, diffs, 2)

	require.Equal(t, "users: missing columns level; unexpected columns tier", diffs[0].String())
	require.Equal(t, "time: table missing", diffs[1].String())
}

func TestRunner_RequiresWarehouse(t *testing.T) {
	t.Parallel()

	r := &Runner{}
	require.Error(t, r.DropTables(context.Background()))
	require.Error(t, r.LoadStaging(context.Background(), LoadOptions{}))
	_, err := r.VerifySchema(context.Background())
	require.Error(t, err)
}

// pathsFor renders a JSONPaths document mapping the camelCase log keys onto
// the lowercase staging columns.
func pathsFor(t *testing.T, table string) string {
	t.Helper()
	spec, ok := queries.Table(table)
	require.True(t, ok)

	camel := map[string]string{
		"firstname": "firstName", "iteminsession": "itemInSession", "lastname": "lastName",
		"sessionid": "sessionId", "useragent": "userAgent", "userid": "userId",
	}
	var paths []string
	for _, c := range spec.ColumnNames() {
		key := c
		if k, ok := camel[c]; ok {
			key = k
		}
		paths = append(paths, fmt.Sprintf(`"$['%s']"`, key))
	}
	return `{"jsonpaths": [` + strings.Join(paths, ", ") + `]}`
}
