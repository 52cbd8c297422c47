// Package queries holds the fixed table layout of the warehouse and renders
// the drop, create, load and insert statements for a storage.Dialect.
package queries

import "dwh/internal/storage"

// Table names.
const (
	StagingEvents = "staging_events"
	StagingSongs  = "staging_songs"
	Songplays     = "songplays"
	Users         = "users"
	Songs         = "songs"
	Artists       = "artists"
	Time          = "time"
)

func col(name string, t storage.ColumnType) storage.ColumnSpec {
	return storage.ColumnSpec{Name: name, Type: t}
}

func pk(name string, t storage.ColumnType) storage.ColumnSpec {
	return storage.ColumnSpec{Name: name, Type: t, PrimaryKey: true}
}

func notNull(name string, t storage.ColumnType) storage.ColumnSpec {
	return storage.ColumnSpec{Name: name, Type: t, NotNull: true}
}

const (
	tInt       = storage.TypeInt
	tBigInt    = storage.TypeBigInt
	tFloat     = storage.TypeFloat
	tVarchar   = storage.TypeVarchar
	tTimestamp = storage.TypeTimestamp
)

// tables lists every table in drop/create order. Staging column names are
// the lowercase forms of the source JSON keys.
var tables = []storage.TableSpec{
	{
		Name: StagingEvents,
		Role: storage.RoleStaging,
		Columns: []storage.ColumnSpec{
			col("artist", tVarchar),
			col("auth", tVarchar),
			col("firstname", tVarchar),
			col("gender", tVarchar),
			col("iteminsession", tInt),
			col("lastname", tVarchar),
			col("length", tFloat),
			col("level", tVarchar),
			col("location", tVarchar),
			col("method", tVarchar),
			col("page", tVarchar),
			col("registration", tBigInt),
			col("sessionid", tInt),
			col("song", tVarchar),
			col("status", tInt),
			col("ts", tBigInt),
			col("useragent", tVarchar),
			col("userid", tInt),
		},
	},
	{
		Name: StagingSongs,
		Role: storage.RoleStaging,
		Columns: []storage.ColumnSpec{
			col("num_songs", tInt),
			col("artist_id", tVarchar),
			col("artist_latitude", tFloat),
			col("artist_longitude", tFloat),
			col("artist_location", tVarchar),
			col("artist_name", tVarchar),
			col("song_id", tVarchar),
			col("title", tVarchar),
			col("duration", tFloat),
			col("year", tInt),
		},
	},
	{
		Name: Songplays,
		Role: storage.RoleFact,
		Columns: []storage.ColumnSpec{
			{Name: "songplay_id", Type: tInt, Identity: true},
			notNull("start_time", tTimestamp),
			notNull("user_id", tInt),
			col("level", tVarchar),
			col("song_id", tVarchar),
			col("artist_id", tVarchar),
			col("session_id", tInt),
			col("location", tVarchar),
			col("user_agent", tVarchar),
		},
	},
	{
		Name: Users,
		Role: storage.RoleDimension,
		Columns: []storage.ColumnSpec{
			pk("user_id", tInt),
			col("first_name", tVarchar),
			col("last_name", tVarchar),
			col("gender", tVarchar),
			col("level", tVarchar),
		},
	},
	{
		Name: Songs,
		Role: storage.RoleDimension,
		Columns: []storage.ColumnSpec{
			pk("song_id", tVarchar),
			col("title", tVarchar),
			col("artist_id", tVarchar),
			col("year", tInt),
			col("duration", tFloat),
		},
	},
	{
		Name: Artists,
		Role: storage.RoleDimension,
		Columns: []storage.ColumnSpec{
			pk("artist_id", tVarchar),
			col("name", tVarchar),
			col("location", tVarchar),
			col("latitude", tFloat),
			col("longitude", tFloat),
		},
	},
	{
		Name: Time,
		Role: storage.RoleDimension,
		Columns: []storage.ColumnSpec{
			pk("start_time", tTimestamp),
			col("hour", tInt),
			col("day", tInt),
			col("week", tInt),
			col("month", tInt),
			col("year", tInt),
			col("weekday", tInt),
		},
	},
}

// Tables returns the seven table specs in drop/create order.
func Tables() []storage.TableSpec {
	out := make([]storage.TableSpec, len(tables))
	copy(out, tables)
	return out
}

// Table looks up a table spec by name.
func Table(name string) (storage.TableSpec, bool) {
	for _, t := range tables {
		if t.Name == name {
			return t, true
		}
	}
	return storage.TableSpec{}, false
}
