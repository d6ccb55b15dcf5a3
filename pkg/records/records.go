// Package records defines the typed input records read by the pipeline.
//
// Every attribute is optional. A field that is missing from the source
// document, JSON null, or of an unexpected JSON type decodes to nil; the rest
// of the record is kept. Downstream stages treat nil as SQL NULL.
//
// Each record also carries its Origin (object key + document number inside the
// object). Records are read concurrently, so any order-sensitive step sorts on
// Origin instead of relying on arrival order.
package records

// Origin identifies where a record was decoded from.
type Origin struct {
	// Key is the object key (or local path) the record was read from.
	Key string
	// Line is the 1-based document number inside the object.
	Line int
}

// Before reports whether o sorts strictly before p (key first, then line).
func (o Origin) Before(p Origin) bool {
	if o.Key != p.Key {
		return o.Key < p.Key
	}
	return o.Line < p.Line
}

// SongRecord is one song-metadata document.
type SongRecord struct {
	NumSongs        *int64   `json:"num_songs,omitempty"`
	SongID          *string  `json:"song_id,omitempty"`
	Title           *string  `json:"title,omitempty"`
	ArtistID        *string  `json:"artist_id,omitempty"`
	ArtistName      *string  `json:"artist_name,omitempty"`
	ArtistLocation  *string  `json:"artist_location,omitempty"`
	ArtistLatitude  *float64 `json:"artist_latitude,omitempty"`
	ArtistLongitude *float64 `json:"artist_longitude,omitempty"`
	// Year is the release year; 0 means unknown.
	Year     *int64   `json:"year,omitempty"`
	Duration *float64 `json:"duration,omitempty"`

	Origin Origin `json:"-"`
}

// LogRecord is one user-activity event.
type LogRecord struct {
	Artist        *string  `json:"artist,omitempty"`
	Auth          *string  `json:"auth,omitempty"`
	FirstName     *string  `json:"firstName,omitempty"`
	Gender        *string  `json:"gender,omitempty"`
	ItemInSession *int64   `json:"itemInSession,omitempty"`
	LastName      *string  `json:"lastName,omitempty"`
	Length        *float64 `json:"length,omitempty"`
	Level         *string  `json:"level,omitempty"`
	Location      *string  `json:"location,omitempty"`
	Method        *string  `json:"method,omitempty"`
	Page          *string  `json:"page,omitempty"`
	Registration  *float64 `json:"registration,omitempty"`
	SessionID     *int64   `json:"sessionId,omitempty"`
	Song          *string  `json:"song,omitempty"`
	Status        *int64   `json:"status,omitempty"`
	// TS is the event time in milliseconds since the Unix epoch.
	TS        *int64  `json:"ts,omitempty"`
	UserAgent *string `json:"userAgent,omitempty"`
	UserID    *string `json:"userId,omitempty"`

	Origin Origin `json:"-"`
}

// Ptr returns a pointer to v. It keeps fixtures and tests readable.
func Ptr[T any](v T) *T { return &v }

// Value dereferences p, returning the zero value for nil.
func Value[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
