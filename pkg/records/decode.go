package records

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotObject is returned for documents that are valid JSON but not an
// object (including a bare null).
var ErrNotObject = errors.New("records: document is not a JSON object")

// fields is a decoded JSON object whose values are still raw.
type fields map[string]json.RawMessage

func decodeFields(b []byte) (fields, error) {
	var f fields
	if err := json.Unmarshal(b, &f); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, ErrNotObject
		}
		return nil, err
	}
	if f == nil {
		return nil, ErrNotObject
	}
	return f, nil
}

// DecodeSong decodes one song document and stamps its origin.
func DecodeSong(o Origin, raw []byte) (SongRecord, error) {
	r := SongRecord{Origin: o}
	err := json.Unmarshal(raw, &r)
	return r, err
}

// DecodeLog decodes one activity-log document and stamps its origin.
func DecodeLog(o Origin, raw []byte) (LogRecord, error) {
	r := LogRecord{Origin: o}
	err := json.Unmarshal(raw, &r)
	return r, err
}

// UnmarshalJSON decodes a song document field by field so that one bad
// attribute never discards the whole record.
func (s *SongRecord) UnmarshalJSON(b []byte) error {
	f, err := decodeFields(b)
	if err != nil {
		return err
	}
	origin := s.Origin
	*s = SongRecord{
		NumSongs:        f.int("num_songs"),
		SongID:          f.key("song_id"),
		Title:           f.str("title"),
		ArtistID:        f.key("artist_id"),
		ArtistName:      f.str("artist_name"),
		ArtistLocation:  f.str("artist_location"),
		ArtistLatitude:  f.float("artist_latitude"),
		ArtistLongitude: f.float("artist_longitude"),
		Year:            f.int("year"),
		Duration:        f.float("duration"),
		Origin:          origin,
	}
	return nil
}

// UnmarshalJSON decodes an activity-log event field by field.
func (l *LogRecord) UnmarshalJSON(b []byte) error {
	f, err := decodeFields(b)
	if err != nil {
		return err
	}
	origin := l.Origin
	*l = LogRecord{
		Artist:        f.str("artist"),
		Auth:          f.str("auth"),
		FirstName:     f.str("firstName"),
		Gender:        f.str("gender"),
		ItemInSession: f.int("itemInSession"),
		LastName:      f.str("lastName"),
		Length:        f.float("length"),
		Level:         f.str("level"),
		Location:      f.str("location"),
		Method:        f.str("method"),
		Page:          f.str("page"),
		Registration:  f.float("registration"),
		SessionID:     f.int("sessionId"),
		Song:          f.str("song"),
		Status:        f.int("status"),
		TS:            f.int("ts"),
		UserAgent:     f.str("userAgent"),
		UserID:        f.key("userId"),
		Origin:        origin,
	}
	return nil
}

func (f fields) raw(name string) (json.RawMessage, bool) {
	v, ok := f[name]
	if !ok {
		return nil, false
	}
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return nil, false
	}
	return v, true
}

// str accepts JSON strings only.
func (f fields) str(name string) *string {
	v, ok := f.raw(name)
	if !ok || v[0] != '"' {
		return nil
	}
	var s string
	if json.Unmarshal(v, &s) != nil {
		return nil
	}
	return &s
}

// key is str for identifier columns: numbers are rendered as decimal text and
// blank values count as missing.
func (f fields) key(name string) *string {
	if s := f.str(name); s != nil {
		if strings.TrimSpace(*s) == "" {
			return nil
		}
		return s
	}
	if n := f.int(name); n != nil {
		s := strconv.FormatInt(*n, 10)
		return &s
	}
	return nil
}

// float accepts JSON numbers and numeric strings.
func (f fields) float(name string) *float64 {
	v, ok := f.raw(name)
	if !ok {
		return nil
	}
	text := string(v)
	if v[0] == '"' {
		if json.Unmarshal(v, &text) != nil {
			return nil
		}
		text = strings.TrimSpace(text)
	}
	n, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil
	}
	return &n
}

// int accepts integral JSON numbers (including 1.0 and 1e3) and numeric
// strings. Fractional values are rejected rather than truncated.
func (f fields) int(name string) *int64 {
	v, ok := f.raw(name)
	if !ok {
		return nil
	}
	text := string(v)
	if v[0] == '"' {
		if json.Unmarshal(v, &text) != nil {
			return nil
		}
		text = strings.TrimSpace(text)
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return &n
	}
	fl, err := strconv.ParseFloat(text, 64)
	if err != nil || fl != math.Trunc(fl) || math.Abs(fl) >= math.MaxInt64 {
		return nil
	}
	n := int64(fl)
	return &n
}
