package transformer

import (
	"math"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ypatankar/datalake/internal/schema"
	"github.com/ypatankar/datalake/pkg/records"
)

type ev struct {
	key    string
	line   int
	page   string
	user   string
	level  string
	ts     int64 // 0 means null
	song   string
	artist string
	length float64
}

func (e ev) record() records.LogRecord {
	r := records.LogRecord{
		Page:      p(e.page),
		Level:     p(e.level),
		SessionID: records.Ptr(int64(7)),
		Location:  p("Atlanta-Sandy Springs-Roswell, GA"),
		UserAgent: p("Mozilla/5.0"),
		Origin:    records.Origin{Key: e.key, Line: e.line},
	}
	if e.user != "" {
		r.UserID = p(e.user)
		r.FirstName = p("first-" + e.user)
	}
	if e.ts != 0 {
		r.TS = records.Ptr(e.ts)
	}
	if e.song != "" {
		r.Song = p(e.song)
	}
	if e.artist != "" {
		r.Artist = p(e.artist)
	}
	if e.length != 0 {
		r.Length = records.Ptr(e.length)
	}
	return r
}

func recs(evs ...ev) []records.LogRecord {
	out := make([]records.LogRecord, len(evs))
	for i, e := range evs {
		out[i] = e.record()
	}
	return out
}

func catalog() SongTables {
	return BuildSongTables([]records.SongRecord{
		song("s/1.json", 1, "SOB", "Yellow", "AR2", "Coldplay", 266.0),
		song("s/2.json", 1, "SOA", "Yellow", "AR1", "Coldplay", 266.0),
		song("s/3.json", 1, "SOC", "Sehr kosmisch", "AR3", "Harmonia", 655.77751),
		song("s/4.json", 1, "SOD", "Café", "AR4", "Zoé", 200.5),
		{SongID: p("SOE"), Title: p("Orphan"), ArtistID: p("AR-missing"), Duration: records.Ptr(1.0)},
	}, SongOptions{})
}

const (
	ts1 = int64(1541105830796) // 2018-11-01T20:57:10.796Z
	ts2 = int64(1541106106796) // 2018-11-01T21:01:46.796Z
	ts3 = int64(1543622400000) // 2018-12-01T00:00:00Z
)

func TestBuildLogTables_PageFilter(t *testing.T) {
	t.Parallel()

	got := BuildLogTables(recs(
		ev{key: "l/1", line: 1, page: "NextSong", user: "1", ts: ts1},
		ev{key: "l/1", line: 2, page: "Home", user: "2", ts: ts2},
		ev{key: "l/1", line: 3, page: "nextsong", user: "3", ts: ts2},
	), SongTables{}, LogOptions{})

	assert.Equal(t, 1, got.Filtered)
	require.Len(t, got.Users, 1)
	assert.Equal(t, "1", got.Users[0].UserID)
	assert.Len(t, got.Times, 1)
	assert.Len(t, got.Songplays, 1)

	custom := BuildLogTables(recs(ev{key: "l", line: 1, page: "Home", ts: ts1}), SongTables{}, LogOptions{Page: "Home"})
	assert.Equal(t, 1, custom.Filtered)
}

func TestBuildLogTables_UserLatestTS(t *testing.T) {
	t.Parallel()

	got := BuildLogTables(recs(
		ev{key: "l/1", line: 1, page: "NextSong", user: "26", level: "paid", ts: ts2},
		ev{key: "l/1", line: 2, page: "NextSong", user: "26", level: "free", ts: ts1},
		ev{key: "l/2", line: 1, page: "NextSong", user: "26", level: "unknown"}, // null ts sorts first
		ev{key: "l/3", line: 1, page: "NextSong", user: "8", level: "free", ts: ts3},
		ev{key: "l/4", line: 1, page: "NextSong", user: "8", level: "paid", ts: ts3}, // tie: later origin wins
		ev{key: "l/5", line: 1, page: "NextSong", level: "free", ts: ts3},            // no user id
	), SongTables{}, LogOptions{})

	levels := map[string]string{}
	for _, u := range got.Users {
		levels[u.UserID] = records.Value(u.Level)
	}
	assert.Equal(t, map[string]string{"26": "paid", "8": "paid"}, levels)

	first := BuildLogTables(recs(
		ev{key: "l/1", line: 1, page: "NextSong", user: "26", level: "paid", ts: ts2},
		ev{key: "l/1", line: 2, page: "NextSong", user: "26", level: "free", ts: ts1},
	), SongTables{}, LogOptions{UserPolicy: "keep-first"})
	require.Len(t, first.Users, 1)
	assert.Equal(t, p("paid"), first.Users[0].Level)
}

func TestBuildLogTables_Time(t *testing.T) {
	t.Parallel()

	got := BuildLogTables(recs(
		ev{key: "l", line: 1, page: "NextSong", ts: ts1},
		ev{key: "l", line: 2, page: "NextSong", ts: ts1},
		ev{key: "l", line: 3, page: "NextSong"},
		ev{key: "l", line: 4, page: "NextSong", ts: ts3},
	), SongTables{}, LogOptions{})

	require.Len(t, got.Times, 2, "duplicate and null timestamps add no row")
	assert.Equal(t, schema.TimeRow{
		StartTime: time.UnixMilli(ts1).UTC(),
		Hour:      20, Day: 1, Week: 44, Month: 11, Year: 2018, Weekday: 4,
	}, got.Times[0])
	assert.Equal(t, int64(6), got.Times[1].Weekday, "2018-12-01 is a Saturday")

	// Every start time maps back to the timestamp it came from.
	for _, tr := range got.Times {
		ms := tr.StartTime.UnixMilli()
		assert.Contains(t, []int64{ts1, ts3}, ms)
		assert.Equal(t, tr.StartTime, startTime(ms, time.UTC))

		// The breakdown recombines to the start time, to the hour.
		rebuilt := time.Date(int(tr.Year), time.Month(tr.Month), int(tr.Day), int(tr.Hour), 0, 0, 0, time.UTC)
		assert.True(t, rebuilt.Equal(tr.StartTime.Truncate(time.Hour)), "%s vs %s", rebuilt, tr.StartTime)
		assert.Equal(t, int64(rebuilt.Weekday()), tr.Weekday)
		_, week := rebuilt.ISOWeek()
		assert.Equal(t, int64(week), tr.Week)
	}
}

func TestBuildLogTables_TimeZone(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	got := BuildLogTables(recs(ev{key: "l", line: 1, page: "NextSong", ts: ts3}), SongTables{}, LogOptions{Location: ny})
	require.Len(t, got.Times, 1)
	tr := got.Times[0]
	assert.Equal(t, int64(19), tr.Hour)
	assert.Equal(t, int64(30), tr.Day)
	assert.Equal(t, int64(11), tr.Month)
	assert.Equal(t, ts3, tr.StartTime.UnixMilli(), "the instant is unchanged")

	sp := got.Songplays[0]
	assert.Equal(t, int64(11), *sp.Month, "partition month follows the zone")
}

func TestBuildLogTables_SongplayJoin(t *testing.T) {
	t.Parallel()

	got := BuildLogTables(recs(
		ev{key: "l", line: 1, page: "NextSong", user: "1", ts: ts3, song: "Sehr kosmisch", artist: "Harmonia", length: 655.77751},
		ev{key: "l", line: 2, page: "NextSong", user: "1", ts: ts1, song: "Yellow", artist: "Coldplay", length: 266.0},
		ev{key: "l", line: 3, page: "NextSong", user: "1", song: "Yellow", artist: "Coldplay", length: 266.0},
		ev{key: "l", line: 4, page: "NextSong", user: "1", ts: ts2, song: "Yellow", artist: "Coldplay", length: 266.5},
		ev{key: "l", line: 5, page: "NextSong", user: "1", ts: ts2, song: "Yellow", length: 266.0},
		ev{key: "l", line: 6, page: "NextSong", user: "1", ts: ts2, song: "Orphan", artist: "Somebody", length: 1.0},
	), catalog(), LogOptions{})

	require.Len(t, got.Songplays, 6, "song plays are never dropped")
	assert.Equal(t, 3, got.Matched)

	type res struct {
		id       int64
		songID   *string
		artistID *string
		hasTS    bool
	}
	var rows []res
	for _, sp := range got.Songplays {
		rows = append(rows, res{sp.SongplayID, sp.SongID, sp.ArtistID, sp.StartTime != nil})
	}
	assert.Equal(t, []res{
		{1, p("SOA"), p("AR1"), true},  // ts1; two candidates, smallest song id wins
		{2, nil, nil, true},            // ts2, line 4: length differs
		{3, nil, nil, true},            // ts2, line 5: artist missing
		{4, nil, nil, true},            // ts2, line 6: the song's artist has no name
		{5, p("SOC"), p("AR3"), true},  // ts3
		{6, p("SOA"), p("AR1"), false}, // null ts sorts last
	}, rows)

	first := got.Songplays[0]
	assert.Equal(t, int64(2018), *first.Year)
	assert.Equal(t, int64(11), *first.Month)
	assert.Equal(t, p("1"), first.UserID)
	assert.Equal(t, records.Ptr(int64(7)), first.SessionID)
	assert.Equal(t, p("Mozilla/5.0"), first.UserAgent)

	last := got.Songplays[5]
	assert.Nil(t, last.Year)
	assert.Nil(t, last.Month)
}

func TestBuildLogTables_NormalizeUnicode(t *testing.T) {
	t.Parallel()

	// "Café" and "Zoé" spelled with combining accents (NFD).
	play := recs(ev{key: "l", line: 1, page: "NextSong", ts: ts1, song: "Cafe\u0301", artist: "Zoe\u0301", length: 200.5})

	exact := BuildLogTables(play, catalog(), LogOptions{})
	assert.Nil(t, exact.Songplays[0].SongID, "byte comparison by default")

	folded := BuildLogTables(play, catalog(), LogOptions{NormalizeUnicode: true})
	assert.Equal(t, p("SOD"), folded.Songplays[0].SongID)
	assert.Equal(t, p("AR4"), folded.Songplays[0].ArtistID)
}

func TestBuildLogTables_Datasets(t *testing.T) {
	t.Parallel()

	got := BuildLogTables(recs(ev{key: "l", line: 1, page: "NextSong", user: "1", ts: ts1}), SongTables{}, LogOptions{})
	ds := got.Datasets()
	require.Len(t, ds, 3)
	assert.Equal(t, []string{"user", "time", "songplay"}, []string{ds[0].Table.Name, ds[1].Table.Name, ds[2].Table.Name})
	assert.Equal(t, 1, ds[2].Len())
}

func TestTripleHash(t *testing.T) {
	t.Parallel()

	assert.Equal(t, tripleHash("a", "b", 0), tripleHash("a", "b", math.Copysign(0, -1)))
	assert.NotEqual(t, tripleHash("ab", "c", 1), tripleHash("a", "bc", 1), "lengths separate the fields")
	assert.NotEqual(t, tripleHash("a", "b", 1), tripleHash("a", "b", 2))
}
