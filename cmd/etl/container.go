package main

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ypatankar/datalake/internal/blob"
	"github.com/ypatankar/datalake/internal/config"
	"github.com/ypatankar/datalake/internal/engine"
	"github.com/ypatankar/datalake/internal/metrics"
	jsonparser "github.com/ypatankar/datalake/internal/parser/json"
	"github.com/ypatankar/datalake/internal/schema"
	"github.com/ypatankar/datalake/internal/sink/parquet"
	"github.com/ypatankar/datalake/internal/storage"
	"github.com/ypatankar/datalake/internal/transformer"
	"github.com/ypatankar/datalake/pkg/records"
)

// parseErrSamples bounds the parse error messages kept for the summary.
const parseErrSamples = 5

// tableWriter is the part of parquet.Sink the runner uses.
type tableWriter interface {
	WriteTable(ctx context.Context, ds schema.Dataset) (parquet.Stats, error)
}

// Function variables used to introduce test seams.
// In production these point to real implementations; tests can override them.
var (
	openSessionFn = engine.NewSession

	newParquetSinkFn = func(store blob.Store, cfg parquet.Config) (tableWriter, error) {
		return parquet.New(store, cfg)
	}

	newRepositoryFn = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return storage.New(ctx, cfg)
	}
)

// summary is what one run read and wrote.
type summary struct {
	RunID       string
	SongRecords int64
	LogRecords  int64
	ParseErrors int64
	// Filtered counts events kept by the page filter; Matched counts the
	// song plays joined to a song.
	Filtered int
	Matched  int
	// Written maps table name to rows written as Parquet.
	Written map[string]int
	// Loaded maps table name to rows loaded into the warehouse.
	Loaded map[string]int64
}

// runPipeline executes one run: session, song tables, log tables, Parquet
// sink and, when configured, the warehouse loader. Each step is timed and
// recorded as a metric; the first failing step aborts the run.
//
// Invariants reported in the summary:
//
//	Written[songplay] == Filtered
//	Matched <= Filtered
func runPipeline(ctx context.Context, pl config.Pipeline, creds blob.Credentials, logger *zap.Logger) (summary, error) {
	sum := summary{Written: map[string]int{}, Loaded: map[string]int64{}}
	job := pl.Job

	inLoc, err := blob.ParseLocation(pl.Input.Base)
	if err != nil {
		return sum, errors.Wrap(err, "input.base")
	}
	outLoc, err := blob.ParseLocation(pl.Output.Base)
	if err != nil {
		return sum, errors.Wrap(err, "output.base")
	}

	var sess *engine.Session
	err = step(job, "session", func() error {
		var err error
		sess, err = openSessionFn(ctx, engine.Config{
			AppName:     job,
			Workers:     pl.Runtime.ReaderWorkers,
			TimeZone:    pl.Runtime.TimeZone,
			Credentials: creds,
			Parser:      jsonparser.FromConfigOptions(pl.Input.Parser.Options),
			Logger:      logger,
		})
		return err
	})
	if err != nil {
		return sum, errors.Wrap(err, "open session")
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.Warn("session close", zap.Error(cerr))
		}
	}()
	sum.RunID = sess.RunID
	log := sess.Logger

	parseAgg := newErrAgg(parseErrSamples)
	readOpts := engine.ReadOptions{OnParseError: func(o records.Origin, err error) {
		parseAgg.add(fmt.Sprintf("%s:%d: %v", o.Key, o.Line, err))
	}}

	var songTables transformer.SongTables
	err = step(job, "songs", func() error {
		songs, st, err := engine.ReadJSON(ctx, sess, inLoc, pl.Input.SongData, records.DecodeSong, readOpts)
		if err != nil {
			return err
		}
		sum.SongRecords = st.Records
		songTables = transformer.BuildSongTables(songs, songOptions(pl))
		return nil
	})
	if err != nil {
		return sum, errors.Wrap(err, "song tables")
	}

	var logTables transformer.LogTables
	err = step(job, "logs", func() error {
		events, st, err := engine.ReadJSON(ctx, sess, inLoc, pl.Input.LogData, records.DecodeLog, readOpts)
		if err != nil {
			return err
		}
		sum.LogRecords = st.Records
		logTables = transformer.BuildLogTables(events, songTables, logOptions(pl, sess.Location))
		sum.Filtered = logTables.Filtered
		sum.Matched = logTables.Matched
		return nil
	})
	if err != nil {
		return sum, errors.Wrap(err, "log tables")
	}
	sum.ParseErrors = int64(parseAgg.count)
	metrics.RecordRow(job, "song_records", sum.SongRecords)
	metrics.RecordRow(job, "log_records", sum.LogRecords)
	metrics.RecordRow(job, "parse_errors", sum.ParseErrors)
	metrics.RecordRow(job, "filtered", int64(sum.Filtered))
	metrics.RecordRow(job, "matched", int64(sum.Matched))

	datasets := append(songTables.Datasets(), logTables.Datasets()...)

	err = step(job, "parquet", func() error {
		store, err := sess.Store(ctx, outLoc)
		if err != nil {
			return err
		}
		w, err := newParquetSinkFn(store, parquet.Config{
			Base:        outLoc,
			Compression: pl.Output.Compression,
			RunID:       sess.RunID,
			Logger:      log,
			Allocator:   sess.Alloc,
		})
		if err != nil {
			return err
		}
		for _, ds := range datasets {
			st, err := w.WriteTable(ctx, ds)
			if err != nil {
				return err
			}
			sum.Written[ds.Table.Name] = st.Rows
			metrics.RecordTable(job, ds.Table.Name, "parquet", int64(st.Rows))
			metrics.RecordBytes(job, ds.Table.Name, st.Bytes)
		}
		return nil
	})
	if err != nil {
		return sum, errors.Wrap(err, "parquet sink")
	}

	if pl.Warehouse.Kind != "" {
		err = step(job, "warehouse", func() error {
			return loadWarehouse(ctx, pl, datasets, log, &sum)
		})
		if err != nil {
			return sum, errors.Wrapf(err, "warehouse %s", pl.Warehouse.Kind)
		}
	}

	logSummary(log, sum, parseAgg)
	return sum, nil
}

// loadWarehouse replaces every star-schema table in the configured warehouse.
func loadWarehouse(ctx context.Context, pl config.Pipeline, datasets []schema.Dataset, log *zap.Logger, sum *summary) error {
	repo, err := newRepositoryFn(ctx, storage.Config{
		Kind:   pl.Warehouse.Kind,
		DSN:    pl.Warehouse.DSN,
		Schema: pl.Warehouse.Schema,
	})
	if err != nil {
		return err
	}
	defer repo.Close()

	dbSchema := pl.Warehouse.Schema
	if pl.Warehouse.Kind == "sqlite" {
		dbSchema = ""
	}
	for _, ds := range datasets {
		n, err := storage.LoadDataset(ctx, repo, dbSchema, ds, pl.Runtime.BatchSize, log)
		if err != nil {
			return err
		}
		sum.Loaded[ds.Table.Name] = n
		metrics.RecordTable(pl.Job, ds.Table.Name, pl.Warehouse.Kind, n)
	}
	return nil
}

// step runs fn and records its duration and outcome.
func step(job, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordStep(job, name, err, time.Since(start))
	return err
}

// songOptions maps dedup and geohash transforms onto the song builder.
// For repeated entries the last one wins.
func songOptions(p config.Pipeline) transformer.SongOptions {
	var o transformer.SongOptions
	for _, t := range p.TransformsOf("dedup") {
		switch t.Options.String("table", "") {
		case schema.Song.Name:
			o.SongPolicy = t.Options.String("policy", "")
		case schema.Artist.Name:
			o.ArtistPolicy = t.Options.String("policy", "")
			o.ArtistPreferFields = t.Options.StringSlice("prefer_fields")
		}
	}
	for _, t := range p.TransformsOf("geohash") {
		o.GeohashPrecision = uint(t.Options.Int("precision", transformer.DefaultGeohashPrecision))
	}
	return o
}

// logOptions maps page_filter, dedup and join transforms onto the log
// builder.
func logOptions(p config.Pipeline, loc *time.Location) transformer.LogOptions {
	o := transformer.LogOptions{Location: loc}
	for _, t := range p.TransformsOf("page_filter") {
		o.Page = t.Options.String("page", transformer.DefaultPage)
	}
	for _, t := range p.TransformsOf("dedup") {
		switch t.Options.String("table", "") {
		case schema.User.Name:
			o.UserPolicy = t.Options.String("policy", "")
		case schema.Time.Name:
			o.TimePolicy = t.Options.String("policy", "")
		}
	}
	for _, t := range p.TransformsOf("join") {
		o.NormalizeUnicode = t.Options.Bool("normalize_unicode", false)
	}
	return o
}

// logSummary prints the end-of-run statistics and the first parse errors.
func logSummary(log *zap.Logger, sum summary, parseAgg *errAgg) {
	if parseAgg.count > 0 {
		log.Warn("parse errors",
			zap.Int("count", parseAgg.count),
			zap.Strings("first", parseAgg.first),
		)
	}

	fields := []zap.Field{
		zap.Int64("processed", sum.SongRecords+sum.LogRecords),
		zap.Int64("parse_errors", sum.ParseErrors),
		zap.Int("filtered", sum.Filtered),
		zap.Int("matched", sum.Matched),
	}
	names := make([]string, 0, len(sum.Written))
	for name := range sum.Written {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fields = append(fields, zap.Int("rows_"+name, sum.Written[name]))
	}
	log.Info("summary", fields...)

	if sum.Written[schema.Songplay.Name] != sum.Filtered {
		log.Warn("row accounting mismatch",
			zap.Int("songplay", sum.Written[schema.Songplay.Name]),
			zap.Int("filtered", sum.Filtered),
		)
	}
}

// errAgg aggregates error messages, keeping the first few verbatim.
type errAgg struct {
	mu    sync.Mutex
	limit int
	count int
	first []string
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
	a.mu.Unlock()
}
