// Package schema describes the star-schema tables the pipeline produces: their
// columns, unique keys and partition columns, plus typed row structs that
// flatten into column-ordered values for the sinks.
package schema

import "time"

// Kind is the logical type of a column. Sinks map it to their physical types.
type Kind int

const (
	KindString Kind = iota
	KindInt64
	KindFloat64
	// KindTimestamp values are time.Time; sinks store them as UTC microseconds.
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindTimestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// Column is one column of a Table.
type Column struct {
	Name     string
	Kind     Kind
	Nullable bool
}

// Table is the definition of one output dataset.
type Table struct {
	Name    string
	Columns []Column
	// Key lists the unique-key columns.
	Key []string
	// PartitionBy lists the partition columns in directory order.
	PartitionBy []string
}

// ColumnNames returns the column names in order.
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Index returns the position of the named column, or -1.
func (t Table) Index(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// IsKey reports whether name is part of the unique key.
func (t Table) IsKey(name string) bool {
	for _, k := range t.Key {
		if k == name {
			return true
		}
	}
	return false
}

var (
	Song = Table{
		Name: "song",
		Columns: []Column{
			{Name: "song_id", Kind: KindString},
			{Name: "title", Kind: KindString, Nullable: true},
			{Name: "artist_id", Kind: KindString, Nullable: true},
			{Name: "year", Kind: KindInt64, Nullable: true},
			{Name: "duration", Kind: KindFloat64, Nullable: true},
		},
		Key:         []string{"song_id"},
		PartitionBy: []string{"year", "artist_id"},
	}

	Artist = Table{
		Name: "artist",
		Columns: []Column{
			{Name: "artist_id", Kind: KindString},
			{Name: "name", Kind: KindString, Nullable: true},
			{Name: "location", Kind: KindString, Nullable: true},
			{Name: "latitude", Kind: KindFloat64, Nullable: true},
			{Name: "longitude", Kind: KindFloat64, Nullable: true},
			{Name: "geohash", Kind: KindString, Nullable: true},
		},
		Key: []string{"artist_id"},
	}

	User = Table{
		Name: "user",
		Columns: []Column{
			{Name: "user_id", Kind: KindString},
			{Name: "first_name", Kind: KindString, Nullable: true},
			{Name: "last_name", Kind: KindString, Nullable: true},
			{Name: "gender", Kind: KindString, Nullable: true},
			{Name: "level", Kind: KindString, Nullable: true},
		},
		Key: []string{"user_id"},
	}

	Time = Table{
		Name: "time",
		Columns: []Column{
			{Name: "start_time", Kind: KindTimestamp},
			{Name: "hour", Kind: KindInt64},
			{Name: "day", Kind: KindInt64},
			{Name: "week", Kind: KindInt64},
			{Name: "month", Kind: KindInt64},
			{Name: "year", Kind: KindInt64},
			{Name: "weekday", Kind: KindInt64},
		},
		Key:         []string{"start_time"},
		PartitionBy: []string{"year", "month"},
	}

	Songplay = Table{
		Name: "songplay",
		Columns: []Column{
			{Name: "songplay_id", Kind: KindInt64},
			{Name: "start_time", Kind: KindTimestamp, Nullable: true},
			{Name: "user_id", Kind: KindString, Nullable: true},
			{Name: "level", Kind: KindString, Nullable: true},
			{Name: "song_id", Kind: KindString, Nullable: true},
			{Name: "artist_id", Kind: KindString, Nullable: true},
			{Name: "session_id", Kind: KindInt64, Nullable: true},
			{Name: "location", Kind: KindString, Nullable: true},
			{Name: "user_agent", Kind: KindString, Nullable: true},
			{Name: "year", Kind: KindInt64, Nullable: true},
			{Name: "month", Kind: KindInt64, Nullable: true},
		},
		Key:         []string{"songplay_id"},
		PartitionBy: []string{"year", "month"},
	}
)

// StarSchema returns the five output tables in write order.
func StarSchema() []Table {
	return []Table{Song, Artist, User, Time, Songplay}
}

// Lookup returns the output table with the given name.
func Lookup(name string) (Table, bool) {
	for _, t := range StarSchema() {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Row is implemented by the typed rows below. Values returns one value per
// table column, in column order: nil, string, int64, float64 or time.Time.
type Row interface {
	Values() []any
}

// Dataset is a materialized table ready for a sink.
type Dataset struct {
	Table Table
	Rows  [][]any
}

// NewDataset flattens typed rows into a Dataset.
func NewDataset[T Row](t Table, rows []T) Dataset {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = r.Values()
	}
	return Dataset{Table: t, Rows: out}
}

// Len returns the number of rows.
func (d Dataset) Len() int { return len(d.Rows) }

type SongRow struct {
	SongID   string
	Title    *string
	ArtistID *string
	Year     *int64
	Duration *float64
}

func (r SongRow) Values() []any {
	return []any{r.SongID, opt(r.Title), opt(r.ArtistID), opt(r.Year), opt(r.Duration)}
}

type ArtistRow struct {
	ArtistID  string
	Name      *string
	Location  *string
	Latitude  *float64
	Longitude *float64
	Geohash   *string
}

func (r ArtistRow) Values() []any {
	return []any{r.ArtistID, opt(r.Name), opt(r.Location), opt(r.Latitude), opt(r.Longitude), opt(r.Geohash)}
}

type UserRow struct {
	UserID    string
	FirstName *string
	LastName  *string
	Gender    *string
	Level     *string
}

func (r UserRow) Values() []any {
	return []any{r.UserID, opt(r.FirstName), opt(r.LastName), opt(r.Gender), opt(r.Level)}
}

// TimeRow breaks a start time into calendar parts. Week is the ISO-8601 week
// number and Weekday counts from 0 (Sunday).
type TimeRow struct {
	StartTime time.Time
	Hour      int64
	Day       int64
	Week      int64
	Month     int64
	Year      int64
	Weekday   int64
}

func (r TimeRow) Values() []any {
	return []any{r.StartTime, r.Hour, r.Day, r.Week, r.Month, r.Year, r.Weekday}
}

// NewTimeRow derives every part from t in t's own location.
func NewTimeRow(t time.Time) TimeRow {
	_, week := t.ISOWeek()
	return TimeRow{
		StartTime: t,
		Hour:      int64(t.Hour()),
		Day:       int64(t.Day()),
		Week:      int64(week),
		Month:     int64(t.Month()),
		Year:      int64(t.Year()),
		Weekday:   int64(t.Weekday()),
	}
}

type SongplayRow struct {
	SongplayID int64
	StartTime  *time.Time
	UserID     *string
	Level      *string
	SongID     *string
	ArtistID   *string
	SessionID  *int64
	Location   *string
	UserAgent  *string
	Year       *int64
	Month      *int64
}

func (r SongplayRow) Values() []any {
	return []any{
		r.SongplayID, opt(r.StartTime), opt(r.UserID), opt(r.Level), opt(r.SongID),
		opt(r.ArtistID), opt(r.SessionID), opt(r.Location), opt(r.UserAgent), opt(r.Year), opt(r.Month),
	}
}

func opt[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
