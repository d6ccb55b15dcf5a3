package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

// TestRowsMatchTables checks that every typed row flattens to exactly one
// value per column of its table, with nil for absent optional fields.
func TestRowsMatchTables(t *testing.T) {
	t.Parallel()

	ts := time.Date(2018, 11, 15, 0, 30, 26, 0, time.UTC)
	tests := []struct {
		table Table
		row   Row
	}{
		{Song, SongRow{SongID: "S1", Title: strp("t")}},
		{Artist, ArtistRow{ArtistID: "A1"}},
		{User, UserRow{UserID: "26", Level: strp("free")}},
		{Time, NewTimeRow(ts)},
		{Songplay, SongplayRow{SongplayID: 1, StartTime: &ts}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.table.Name, func(t *testing.T) {
			t.Parallel()
			vals := tc.row.Values()
			require.Len(t, vals, len(tc.table.Columns))
			for i, c := range tc.table.Columns {
				if !c.Nullable {
					assert.NotNil(t, vals[i], "column %s is required", c.Name)
				}
			}
		})
	}

	vals := SongRow{SongID: "S1"}.Values()
	assert.Equal(t, []any{"S1", nil, nil, nil, nil}, vals)
}

func TestNewTimeRow(t *testing.T) {
	t.Parallel()

	// Sunday 2018-12-30 belongs to ISO week 52; Monday 2018-12-31 to week 1 of 2019.
	sun := NewTimeRow(time.Date(2018, 12, 30, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, TimeRow{
		StartTime: time.Date(2018, 12, 30, 23, 59, 0, 0, time.UTC),
		Hour:      23, Day: 30, Week: 52, Month: 12, Year: 2018, Weekday: 0,
	}, sun)

	mon := NewTimeRow(time.Date(2018, 12, 31, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, int64(1), mon.Week)
	assert.Equal(t, int64(1), mon.Weekday)
	assert.Equal(t, int64(2018), mon.Year, "year is the calendar year, not the ISO year")
}

func TestTableHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"song_id", "title", "artist_id", "year", "duration"}, Song.ColumnNames())
	assert.Equal(t, 3, Song.Index("year"))
	assert.Equal(t, -1, Song.Index("nope"))
	assert.True(t, Songplay.IsKey("songplay_id"))
	assert.False(t, Songplay.IsKey("user_id"))

	tbl, ok := Lookup("time")
	require.True(t, ok)
	assert.Equal(t, []string{"year", "month"}, tbl.PartitionBy)
	_, ok = Lookup("events")
	assert.False(t, ok)

	names := make([]string, 0, 5)
	for _, tb := range StarSchema() {
		names = append(names, tb.Name)
		for _, p := range tb.PartitionBy {
			assert.GreaterOrEqual(t, tb.Index(p), 0, "%s partitions by a real column", tb.Name)
		}
	}
	assert.Equal(t, []string{"song", "artist", "user", "time", "songplay"}, names)
}

func TestNewDataset(t *testing.T) {
	t.Parallel()

	d := NewDataset(User, []UserRow{{UserID: "1"}, {UserID: "2", Gender: strp("F")}})
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, "user", d.Table.Name)
	assert.Equal(t, []any{"2", nil, nil, "F", nil}, d.Rows[1])
}
