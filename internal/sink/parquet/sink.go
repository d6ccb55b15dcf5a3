// Package parquet writes star-schema datasets to object storage as
// Hive-partitioned Parquet files.
//
// A table is replaced wholesale: every partition is encoded in memory first,
// then the existing objects under <base>/<table>/ are deleted, the new files
// are uploaded and a _SUCCESS marker is written last. An encoding failure
// leaves the previous dataset untouched.
package parquet

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	pq "github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ypatankar/datalake/internal/blob"
	"github.com/ypatankar/datalake/internal/schema"
)

// SuccessMarker is written once a table's files are all uploaded.
const SuccessMarker = "_SUCCESS"

// DefaultCompression is used when Config.Compression is empty.
const DefaultCompression = "snappy"

var codecs = map[string]compress.Compression{
	"none":         compress.Codecs.Uncompressed,
	"uncompressed": compress.Codecs.Uncompressed,
	"snappy":       compress.Codecs.Snappy,
	"gzip":         compress.Codecs.Gzip,
	"zstd":         compress.Codecs.Zstd,
	"brotli":       compress.Codecs.Brotli,
}

// Config configures a Sink.
type Config struct {
	// Base is the dataset root; tables land in <Base>/<table>/.
	Base        blob.Location
	Compression string
	// RunID is embedded in file names.
	RunID     string
	Logger    *zap.Logger
	Allocator memory.Allocator
}

// Stats describes one WriteTable call.
type Stats struct {
	Table      string
	Rows       int
	Partitions int
	Files      int
	Bytes      int64
	// Deleted counts objects removed from the previous run.
	Deleted int
}

// Sink writes datasets into one object store.
type Sink struct {
	store     blob.Store
	base      blob.Location
	codec     compress.Compression
	codecName string
	runID     string
	log       *zap.Logger
	alloc     memory.Allocator
}

// New builds a Sink writing through store.
func New(store blob.Store, cfg Config) (*Sink, error) {
	if store == nil {
		return nil, errors.New("parquet: store is required")
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Compression))
	if name == "" {
		name = DefaultCompression
	}
	codec, ok := codecs[name]
	if !ok {
		return nil, errors.Errorf("parquet: unsupported compression %q", cfg.Compression)
	}
	if name == "uncompressed" {
		name = "none"
	}
	if cfg.RunID == "" {
		return nil, errors.New("parquet: run id is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	alloc := cfg.Allocator
	if alloc == nil {
		alloc = memory.NewGoAllocator()
	}
	return &Sink{
		store:     store,
		base:      cfg.Base,
		codec:     codec,
		codecName: name,
		runID:     cfg.RunID,
		log:       logger,
		alloc:     alloc,
	}, nil
}

// FileName returns the name of the data file written in every partition
// directory.
func (s *Sink) FileName() string {
	if s.codecName == "none" {
		return fmt.Sprintf("part-00000-%s.parquet", s.runID)
	}
	return fmt.Sprintf("part-00000-%s.%s.parquet", s.runID, s.codecName)
}

// TablePrefix returns the key prefix holding the table's objects.
func (s *Sink) TablePrefix(table string) string {
	return s.base.Key(table) + "/"
}

type encoded struct {
	key  string
	body []byte
}

// WriteTable replaces the dataset of ds.Table with ds.Rows.
func (s *Sink) WriteTable(ctx context.Context, ds schema.Dataset) (Stats, error) {
	start := time.Now()
	t := ds.Table
	stats := Stats{Table: t.Name, Rows: len(ds.Rows)}

	parts, dataIdx, err := splitPartitions(t, ds.Rows)
	if err != nil {
		return stats, err
	}
	cols := make([]schema.Column, len(dataIdx))
	for j, i := range dataIdx {
		cols[j] = t.Columns[i]
	}
	sc := arrowSchema(cols)

	prefix := s.TablePrefix(t.Name)
	files := make([]encoded, 0, len(parts))
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		body, err := s.encode(sc, cols, p.rows)
		if err != nil {
			return stats, errors.Wrapf(err, "parquet: encode %s/%s", t.Name, p.dir)
		}
		key := prefix + s.FileName()
		if p.dir != "" {
			key = prefix + p.dir + "/" + s.FileName()
		}
		files = append(files, encoded{key: key, body: body})
		stats.Bytes += int64(len(body))
	}

	deleted, err := s.store.DeletePrefix(ctx, prefix)
	if err != nil {
		return stats, errors.Wrapf(err, "parquet: clear %s", prefix)
	}
	stats.Deleted = deleted

	for _, f := range files {
		if err := s.store.Put(ctx, f.key, bytes.NewReader(f.body)); err != nil {
			return stats, errors.Wrapf(err, "parquet: upload %s", f.key)
		}
		stats.Files++
	}
	if err := s.store.Put(ctx, prefix+SuccessMarker, bytes.NewReader(nil)); err != nil {
		return stats, errors.Wrapf(err, "parquet: mark %s", prefix)
	}
	if len(t.PartitionBy) > 0 {
		stats.Partitions = len(parts)
	}

	s.log.Info("table written",
		zap.String("table", t.Name),
		zap.String("prefix", prefix),
		zap.Int("rows", stats.Rows),
		zap.Int("partitions", stats.Partitions),
		zap.Int("files", stats.Files),
		zap.String("bytes", humanize.Bytes(uint64(stats.Bytes))),
		zap.Int("replaced_objects", stats.Deleted),
		zap.Duration("elapsed", time.Since(start)),
	)
	return stats, nil
}

// encode renders rows as one Parquet file.
func (s *Sink) encode(sc *arrow.Schema, cols []schema.Column, rows [][]any) ([]byte, error) {
	b := array.NewRecordBuilder(s.alloc, sc)
	defer b.Release()
	b.Reserve(len(rows))

	for r, row := range rows {
		for i, c := range cols {
			if err := appendValue(b.Field(i), c, row[i]); err != nil {
				return nil, errors.Wrapf(err, "row %d", r)
			}
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	props := pq.NewWriterProperties(
		pq.WithCompression(s.codec),
		pq.WithAllocator(s.alloc),
		pq.WithCreatedBy("datalake"),
	)
	w, err := pqarrow.NewFileWriter(sc, &buf, props, pqarrow.NewArrowWriterProperties(
		pqarrow.WithStoreSchema(),
		pqarrow.WithAllocator(s.alloc),
	))
	if err != nil {
		return nil, err
	}
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ArrowType maps a column kind to its Arrow type.
func ArrowType(k schema.Kind) arrow.DataType {
	switch k {
	case schema.KindInt64:
		return arrow.PrimitiveTypes.Int64
	case schema.KindFloat64:
		return arrow.PrimitiveTypes.Float64
	case schema.KindTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}

func arrowSchema(cols []schema.Column) *arrow.Schema {
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		fields[i] = arrow.Field{Name: c.Name, Type: ArrowType(c.Kind), Nullable: c.Nullable}
	}
	return arrow.NewSchema(fields, nil)
}

func appendValue(fb array.Builder, c schema.Column, v any) error {
	if v == nil {
		if !c.Nullable {
			return errors.Errorf("column %s: null in required column", c.Name)
		}
		fb.AppendNull()
		return nil
	}
	var ok bool
	switch c.Kind {
	case schema.KindString:
		var s string
		if s, ok = v.(string); ok {
			fb.(*array.StringBuilder).Append(s)
		}
	case schema.KindInt64:
		var n int64
		if n, ok = v.(int64); ok {
			fb.(*array.Int64Builder).Append(n)
		}
	case schema.KindFloat64:
		var f float64
		if f, ok = v.(float64); ok {
			fb.(*array.Float64Builder).Append(f)
		}
	case schema.KindTimestamp:
		var ts time.Time
		if ts, ok = v.(time.Time); ok {
			fb.(*array.TimestampBuilder).Append(arrow.Timestamp(ts.UnixMicro()))
		}
	}
	if !ok {
		return errors.Errorf("column %s: %T is not a %s", c.Name, v, c.Kind)
	}
	return nil
}
