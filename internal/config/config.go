// Package config defines the pipeline configuration model for the star-schema
// job. Pipelines are loaded from JSON or YAML files under configs/pipelines/
// and passed through the program without additional glue code.
//
// Example (trimmed):
//
//	{
//	  "job":    "sparkify",
//	  "input":  { "base": "s3a://udacity-dend/", "song_data": "song_data/*/*/*/*.json" },
//	  "transform": [
//	    { "kind": "dedup", "options": { "table": "artist", "policy": "most-complete" } },
//	    { "kind": "join",  "options": { "normalize_unicode": true } }
//	  ],
//	  "output":    { "base": "s3a://my-lake/star/", "compression": "snappy" },
//	  "warehouse": { "kind": "postgres", "dsn": "postgresql://..." }
//	}
package config

import "encoding/json"

// Default input patterns, relative to input.base.
const (
	DefaultSongData = "song_data/*/*/*/*.json"
	DefaultLogData  = "log_data/*/*/*.json"
)

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job names the run for metrics and logs.
	Job string `json:"job" yaml:"job"`

	Input Input `json:"input" yaml:"input"`

	// Transform lists table-building knobs. Each entry has a kind and an
	// options bag interpreted by the matching builder step.
	Transform []Transform `json:"transform" yaml:"transform"`

	Output Output `json:"output" yaml:"output"`

	// Warehouse optionally loads the star schema into SQL as well. An empty
	// kind disables it.
	Warehouse Warehouse `json:"warehouse" yaml:"warehouse"`

	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
}

// Input locates the song and log documents.
type Input struct {
	// Base is the storage URL both patterns are resolved against.
	Base string `json:"base" yaml:"base"`
	// SongData and LogData are glob patterns relative to Base.
	SongData string `json:"song_data" yaml:"song_data"`
	LogData  string `json:"log_data" yaml:"log_data"`

	Parser Parser `json:"parser" yaml:"parser"`
}

// Parser selects document framing. Only "json" exists today.
type Parser struct {
	Kind string `json:"kind" yaml:"kind"`
	// Options is interpreted by the parser; json reads max_document_bytes.
	Options Options `json:"options" yaml:"options"`
}

// Transform is one builder knob.
type Transform struct {
	// Kind is one of "dedup", "page_filter", "join", "geohash".
	Kind    string  `json:"kind" yaml:"kind"`
	Options Options `json:"options" yaml:"options"`
}

// Output is the Parquet destination.
type Output struct {
	// Base is the storage URL under which <table>/ datasets are written.
	Base string `json:"base" yaml:"base"`
	// Compression is the Parquet codec: snappy, gzip, zstd, brotli, none.
	Compression string `json:"compression" yaml:"compression"`
}

// Warehouse configures the optional SQL sink.
type Warehouse struct {
	// Kind is postgres, sqlite, mysql or mssql.
	Kind string `json:"kind" yaml:"kind"`
	// DSN is the driver connection string.
	DSN string `json:"dsn" yaml:"dsn"`
	// Schema optionally qualifies table names (e.g. "public", "dbo").
	Schema string `json:"schema" yaml:"schema"`
}

// RuntimeConfig controls concurrency and batching.
type RuntimeConfig struct {
	ReaderWorkers int `json:"reader_workers" yaml:"reader_workers"`
	BatchSize     int `json:"batch_size" yaml:"batch_size"`
	// TimeZone is the IANA zone start_time is expressed in. Default UTC.
	TimeZone string `json:"time_zone" yaml:"time_zone"`
}

// ApplyDefaults fills the zero-valued knobs that have documented defaults.
func (p *Pipeline) ApplyDefaults() {
	if p.Job == "" {
		p.Job = "sparkify_etl"
	}
	if p.Input.SongData == "" {
		p.Input.SongData = DefaultSongData
	}
	if p.Input.LogData == "" {
		p.Input.LogData = DefaultLogData
	}
	if p.Input.Parser.Kind == "" {
		p.Input.Parser.Kind = "json"
	}
	if p.Output.Compression == "" {
		p.Output.Compression = "snappy"
	}
	if p.Runtime.ReaderWorkers == 0 {
		p.Runtime.ReaderWorkers = 8
	}
	if p.Runtime.BatchSize == 0 {
		p.Runtime.BatchSize = 10000
	}
	if p.Runtime.TimeZone == "" {
		p.Runtime.TimeZone = "UTC"
	}
}

// TransformsOf returns the transform entries of the given kind, in order.
func (p Pipeline) TransformsOf(kind string) []Transform {
	var out []Transform
	for _, t := range p.Transform {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// Options fetches typed values from a free-form map. It performs minimal
// coercion and returns the default when a key is absent or of an unexpected
// type. JSON numbers arrive as float64 and YAML integers as int; both work.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		}
	}
	return def
}

// StringSlice returns a []string for key when the value is an array of
// strings. Non-string elements are skipped; nil when missing.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// UnmarshalJSON decodes a missing or null options object into an empty,
// non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
