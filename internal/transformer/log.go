package transformer

import (
	"encoding/binary"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/unicode/norm"

	"github.com/ypatankar/datalake/internal/schema"
	"github.com/ypatankar/datalake/internal/transformer/builtin"
	"github.com/ypatankar/datalake/pkg/records"
)

const (
	// DefaultPage is the page value that marks a song play.
	DefaultPage = "NextSong"

	// PolicyLatestTS keeps the row of the event with the greatest timestamp.
	// Null timestamps sort first; ties keep the later record in origin order.
	PolicyLatestTS = "latest-ts"
)

// LogOptions tunes BuildLogTables. Zero values select defaults.
type LogOptions struct {
	// Page is the event page kept by the filter (default NextSong).
	Page string
	// UserPolicy is the user survivor rule (default latest-ts).
	UserPolicy string
	// TimePolicy is the time survivor rule (default keep-first).
	TimePolicy string
	// Location is the zone start times are expressed in (default UTC).
	Location *time.Location
	// NormalizeUnicode compares song titles and artist names in NFC form.
	NormalizeUnicode bool
}

// LogTables holds the event-derived tables.
type LogTables struct {
	Users     []schema.UserRow
	Times     []schema.TimeRow
	Songplays []schema.SongplayRow

	// Filtered counts the events kept by the page filter.
	Filtered int
	// Matched counts the song plays resolved to a song.
	Matched int
}

// Datasets returns the tables in write order.
func (t LogTables) Datasets() []schema.Dataset {
	return []schema.Dataset{
		schema.NewDataset(schema.User, t.Users),
		schema.NewDataset(schema.Time, t.Times),
		schema.NewDataset(schema.Songplay, t.Songplays),
	}
}

// BuildLogTables filters song-play events and derives the user, time and
// songplay tables. Song plays are looked up against songs joined with their
// artists on the exact (title, artist name, duration) triple; plays without a
// match keep NULL song and artist ids.
func BuildLogTables(logs []records.LogRecord, songs SongTables, opts LogOptions) LogTables {
	if opts.Page == "" {
		opts.Page = DefaultPage
	}
	if opts.UserPolicy == "" {
		opts.UserPolicy = PolicyLatestTS
	}
	if opts.TimePolicy == "" {
		opts.TimePolicy = builtin.PolicyKeepFirst
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	sorted := make([]records.LogRecord, len(logs))
	copy(sorted, logs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Origin.Before(sorted[j].Origin) })

	plays := Chain[records.LogRecord]{
		builtin.FieldEquals(func(r records.LogRecord) *string { return r.Page }, opts.Page),
	}.Apply(sorted)

	out := LogTables{
		Users:    buildUsers(plays, opts.UserPolicy),
		Times:    buildTimes(plays, loc, opts.TimePolicy),
		Filtered: len(plays),
	}
	out.Songplays, out.Matched = buildSongplays(plays, newSongIndex(songs, opts.NormalizeUnicode), loc)
	return out
}

func buildUsers(plays []records.LogRecord, policy string) []schema.UserRow {
	ordered := plays
	if policy == PolicyLatestTS {
		ordered = make([]records.LogRecord, len(plays))
		copy(ordered, plays)
		// Stable: equal timestamps stay in origin order, so keep-last picks the
		// later record.
		sort.SliceStable(ordered, func(i, j int) bool {
			a, b := ordered[i].TS, ordered[j].TS
			if a == nil || b == nil {
				return a == nil && b != nil
			}
			return *a < *b
		})
		policy = builtin.PolicyKeepLast
	}

	rows := make([]schema.UserRow, 0, len(ordered))
	for _, r := range ordered {
		if r.UserID == nil {
			continue
		}
		rows = append(rows, schema.UserRow{
			UserID:    *r.UserID,
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Gender:    r.Gender,
			Level:     r.Level,
		})
	}
	return builtin.DeDup[schema.UserRow]{
		Key:     func(r schema.UserRow) (string, bool) { return r.UserID, true },
		Policy:  policy,
		Columns: schema.User.ColumnNames(),
	}.Apply(rows)
}

func buildTimes(plays []records.LogRecord, loc *time.Location, policy string) []schema.TimeRow {
	rows := make([]schema.TimeRow, 0, len(plays))
	for _, r := range plays {
		if r.TS == nil {
			continue
		}
		rows = append(rows, schema.NewTimeRow(startTime(*r.TS, loc)))
	}
	return builtin.DeDup[schema.TimeRow]{
		Key: func(r schema.TimeRow) (string, bool) {
			return strconv.FormatInt(r.StartTime.UnixMicro(), 10), true
		},
		Policy:  policy,
		Columns: schema.Time.ColumnNames(),
	}.Apply(rows)
}

func buildSongplays(plays []records.LogRecord, idx *songIndex, loc *time.Location) ([]schema.SongplayRow, int) {
	ordered := make([]records.LogRecord, len(plays))
	copy(ordered, plays)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		switch {
		case a.TS == nil && b.TS == nil:
		case a.TS == nil:
			return false
		case b.TS == nil:
			return true
		case *a.TS != *b.TS:
			return *a.TS < *b.TS
		}
		return a.Origin.Before(b.Origin)
	})

	rows := make([]schema.SongplayRow, 0, len(ordered))
	matched := 0
	for i, r := range ordered {
		row := schema.SongplayRow{
			SongplayID: int64(i + 1),
			UserID:     r.UserID,
			Level:      r.Level,
			SessionID:  r.SessionID,
			Location:   r.Location,
			UserAgent:  r.UserAgent,
		}
		if r.TS != nil {
			st := startTime(*r.TS, loc)
			year, month := int64(st.Year()), int64(st.Month())
			row.StartTime, row.Year, row.Month = &st, &year, &month
		}
		if c, ok := idx.lookup(r.Song, r.Artist, r.Length); ok {
			songID, artistID := c.songID, c.artistID
			row.SongID, row.ArtistID = &songID, &artistID
			matched++
		}
		rows = append(rows, row)
	}
	return rows, matched
}

// startTime converts epoch milliseconds to a time in loc.
func startTime(ms int64, loc *time.Location) time.Time {
	return time.UnixMilli(ms).In(loc)
}

type candidate struct {
	title, name string
	duration    float64
	songID      string
	artistID    string
}

// songIndex maps the (title, artist name, duration) triple of every song
// joined with its artist to the matching ids. Buckets are keyed by an xxh3
// hash of the triple and verified by exact comparison.
type songIndex struct {
	normalize bool
	buckets   map[uint64][]candidate
}

func newSongIndex(t SongTables, normalize bool) *songIndex {
	idx := &songIndex{normalize: normalize, buckets: map[uint64][]candidate{}}

	artists := make(map[string]schema.ArtistRow, len(t.Artists))
	for _, a := range t.Artists {
		artists[a.ArtistID] = a
	}
	for _, s := range t.Songs {
		if s.ArtistID == nil || s.Title == nil || s.Duration == nil {
			continue
		}
		a, ok := artists[*s.ArtistID]
		if !ok || a.Name == nil {
			continue
		}
		c := candidate{
			title:    idx.fold(*s.Title),
			name:     idx.fold(*a.Name),
			duration: *s.Duration,
			songID:   s.SongID,
			artistID: a.ArtistID,
		}
		h := tripleHash(c.title, c.name, c.duration)
		idx.buckets[h] = append(idx.buckets[h], c)
	}
	return idx
}

func (idx *songIndex) fold(s string) string {
	if idx.normalize {
		return norm.NFC.String(s)
	}
	return s
}

// lookup returns the match for the triple. Among several matches the one with
// the smallest song id, then artist id, wins.
func (idx *songIndex) lookup(title, name *string, duration *float64) (candidate, bool) {
	if title == nil || name == nil || duration == nil {
		return candidate{}, false
	}
	t, n, d := idx.fold(*title), idx.fold(*name), *duration
	var (
		best  candidate
		found bool
	)
	for _, c := range idx.buckets[tripleHash(t, n, d)] {
		if c.title != t || c.name != n || c.duration != d {
			continue
		}
		if !found || c.songID < best.songID || (c.songID == best.songID && c.artistID < best.artistID) {
			best, found = c, true
		}
	}
	return best, found
}

func tripleHash(title, name string, duration float64) uint64 {
	h := xxh3.New()
	var lenBuf [8]byte
	for _, s := range []string{title, name} {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(s)))
		_, _ = h.Write(lenBuf[:])
		_, _ = h.WriteString(s)
	}
	d := duration
	if d == 0 {
		d = 0 // -0 and +0 compare equal, so they must hash equal
	}
	binary.LittleEndian.PutUint64(lenBuf[:], math.Float64bits(d))
	_, _ = h.Write(lenBuf[:])
	return h.Sum64()
}
