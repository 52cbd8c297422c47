//go:build integration

package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"dwh/internal/objectstore"
	"dwh/internal/queries"
	"dwh/internal/storage"
	"dwh/internal/storage/postgres"
)

func TestE2E_Postgres(t *testing.T) {
	ctx := context.Background()

	c, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("dwh"),
		tcpostgres.WithUsername("dwh"),
		tcpostgres.WithPassword("dwh"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, c)
	require.NoError(t, err)

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://dwh:dwh@%s:%s/dwh?sslmode=disable", host, port.Port())

	wh, err := postgres.NewPostgres(ctx, storage.Config{Kind: "postgres", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = wh.Close() })

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "log_data", "events.json"), logEvents)
	writeFile(t, filepath.Join(dir, "log_json_path.json"), pathsFor(t, queries.StagingEvents))
	writeFile(t, filepath.Join(dir, "song_data", "a.json"), songA1+"\n"+songA2)

	r := &Runner{Warehouse: wh, Store: objectstore.Local{}, Logger: testLogger{t}}
	opts := LoadOptions{Sources: queries.Sources{
		LogData:     filepath.Join(dir, "log_data"),
		LogJSONPath: filepath.Join(dir, "log_json_path.json"),
		SongData:    filepath.Join(dir, "song_data"),
	}}

	require.NoError(t, r.ResetSchema(ctx))
	require.NoError(t, r.Run(ctx, opts))

	diffs, err := r.VerifySchema(ctx)
	require.NoError(t, err)
	require.Empty(t, diffs)

	rows, err := wh.QueryRows(ctx, `SELECT start_time, song_id, artist_id FROM songplays WHERE user_id = 39`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	requireTime(t, time.Date(2018, 11, 12, 2, 37, 38, 796e6, time.UTC), rows[0][0])
	require.Equal(t, "S1", rows[0][1])
	require.Equal(t, "A1", rows[0][2])

	rows, err = wh.QueryRows(ctx, `SELECT hour, day, week, month, year, weekday FROM "time" ORDER BY start_time DESC LIMIT 1`)
	require.NoError(t, err)
	require.Equal(t, []any{int32(2), int32(12), int32(46), int32(11), int32(2018), int32(1)}, rows[0])

	rows, err = wh.QueryRows(ctx, `SELECT COUNT(*) FROM songplays WHERE song_id IS NULL AND artist_id IS NULL`)
	require.NoError(t, err)
	require.EqualValues(t, 1, rows[0][0])

	// Rebuilding leaves the schema intact and empty.
	require.NoError(t, r.ResetSchema(ctx))
	for _, table := range queries.Tables() {
		rows, err := wh.QueryRows(ctx, `SELECT COUNT(*) FROM "`+table.Name+`"`)
		require.NoError(t, err)
		require.EqualValues(t, 0, rows[0][0], table.Name)
	}
}

type testLogger struct{ t *testing.T }

func (l testLogger) Printf(format string, v ...any) { l.t.Logf(format, v...) }
