// Package transformer turns decoded input records into the star-schema
// tables. The builders never fail: malformed values arrive as nil fields and
// propagate as NULLs, and rows without their unique key are left out of that
// dimension.
package transformer

import (
	"sort"

	"github.com/mmcloughlin/geohash"

	"github.com/ypatankar/datalake/internal/schema"
	"github.com/ypatankar/datalake/internal/transformer/builtin"
	"github.com/ypatankar/datalake/pkg/records"
)

// DefaultGeohashPrecision is the artist geohash length when none is set.
const DefaultGeohashPrecision = 7

// SongOptions tunes BuildSongTables. Zero values select defaults.
type SongOptions struct {
	// SongPolicy is the song survivor rule (default keep-first).
	SongPolicy string
	// ArtistPolicy is the artist survivor rule (default most-complete).
	ArtistPolicy       string
	ArtistPreferFields []string
	// GeohashPrecision is the artist geohash length, 1..12 (default 7).
	GeohashPrecision uint
}

// SongTables holds the song-derived dimensions.
type SongTables struct {
	Songs   []schema.SongRow
	Artists []schema.ArtistRow
}

// Datasets returns the tables in write order.
func (t SongTables) Datasets() []schema.Dataset {
	return []schema.Dataset{
		schema.NewDataset(schema.Song, t.Songs),
		schema.NewDataset(schema.Artist, t.Artists),
	}
}

// BuildSongTables projects song metadata into the song and artist tables.
// Duplicates are resolved in origin order (object key, then document number)
// whatever order the records arrive in.
func BuildSongTables(songs []records.SongRecord, opts SongOptions) SongTables {
	if opts.SongPolicy == "" {
		opts.SongPolicy = builtin.PolicyKeepFirst
	}
	if opts.ArtistPolicy == "" {
		opts.ArtistPolicy = builtin.PolicyMostComplete
	}
	prec := opts.GeohashPrecision
	if prec == 0 || prec > 12 {
		prec = DefaultGeohashPrecision
	}

	sorted := make([]records.SongRecord, len(songs))
	copy(sorted, songs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Origin.Before(sorted[j].Origin) })

	songRows := make([]schema.SongRow, 0, len(sorted))
	artistRows := make([]schema.ArtistRow, 0, len(sorted))
	for _, r := range sorted {
		if r.SongID != nil {
			songRows = append(songRows, schema.SongRow{
				SongID:   *r.SongID,
				Title:    r.Title,
				ArtistID: r.ArtistID,
				Year:     r.Year,
				Duration: r.Duration,
			})
		}
		if r.ArtistID != nil {
			artistRows = append(artistRows, schema.ArtistRow{
				ArtistID:  *r.ArtistID,
				Name:      r.ArtistName,
				Location:  r.ArtistLocation,
				Latitude:  r.ArtistLatitude,
				Longitude: r.ArtistLongitude,
				Geohash:   geohashOf(r.ArtistLatitude, r.ArtistLongitude, prec),
			})
		}
	}

	songDedup := builtin.DeDup[schema.SongRow]{
		Key:     func(r schema.SongRow) (string, bool) { return r.SongID, true },
		Policy:  opts.SongPolicy,
		Columns: schema.Song.ColumnNames(),
	}
	artistDedup := builtin.DeDup[schema.ArtistRow]{
		Key:          func(r schema.ArtistRow) (string, bool) { return r.ArtistID, true },
		Policy:       opts.ArtistPolicy,
		Columns:      schema.Artist.ColumnNames(),
		PreferFields: opts.ArtistPreferFields,
	}
	return SongTables{
		Songs:   songDedup.Apply(songRows),
		Artists: artistDedup.Apply(artistRows),
	}
}

// geohashOf returns nil unless both coordinates are present and in range.
func geohashOf(lat, lng *float64, prec uint) *string {
	if lat == nil || lng == nil {
		return nil
	}
	if *lat < -90 || *lat > 90 || *lng < -180 || *lng > 180 {
		return nil
	}
	h := geohash.EncodeWithPrecision(*lat, *lng, prec)
	return &h
}
