package engine

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ypatankar/datalake/internal/blob"
	jsonparser "github.com/ypatankar/datalake/internal/parser/json"
	"github.com/ypatankar/datalake/pkg/records"
)

// DecodeFunc turns one framed document into a record.
type DecodeFunc[T any] func(o records.Origin, raw []byte) (T, error)

// ReadStats summarises one ReadJSON call.
type ReadStats struct {
	Objects     int
	Bytes       int64
	Documents   int64
	Records     int64
	ParseErrors int64
}

// ReadOptions tunes ReadJSON.
type ReadOptions struct {
	// OnParseError, when set, is called for every document that fails to
	// decode. Calls are serialised.
	OnParseError func(o records.Origin, err error)
}

// ReadJSON globs pattern under base, reads the matching objects in parallel
// (bounded by the session worker limit) and decodes every document.
//
// Records are returned grouped by object in ascending key order and, within
// an object, in document order, whatever the scheduling. Documents that fail
// to decode are counted and skipped. Store, list, open and read errors are
// fatal and cancel the remaining reads.
func ReadJSON[T any](ctx context.Context, s *Session, base blob.Location, pattern string, decode DecodeFunc[T], opt ReadOptions) ([]T, ReadStats, error) {
	var stats ReadStats
	start := time.Now()

	st, err := s.Store(ctx, base)
	if err != nil {
		return nil, stats, err
	}
	full := base.Key(pattern)
	keys, err := blob.Glob(ctx, st, full)
	if err != nil {
		return nil, stats, errors.Wrapf(err, "engine: glob %s", full)
	}
	stats.Objects = len(keys)
	log := s.Logger.With(zap.String("pattern", full))
	if len(keys) == 0 {
		log.Warn("no objects matched")
		return nil, stats, nil
	}

	var (
		bytesRead, docs, recs, bad atomic.Int64
		errMu                      sync.Mutex
	)
	perObject := make([][]T, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Workers)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			rc, err := st.Open(gctx, key)
			if err != nil {
				return err
			}
			cr := &countingReader{r: rc}
			frames, err := jsonparser.ReadDocuments(cr, s.Parser)
			_ = rc.Close()
			bytesRead.Add(cr.n)
			if err != nil {
				return errors.Wrapf(err, "engine: read %s", key)
			}

			out := make([]T, 0, len(frames))
			for _, d := range frames {
				o := records.Origin{Key: key, Line: d.Line}
				rec, err := decode(o, d.Raw)
				if err != nil {
					bad.Add(1)
					if opt.OnParseError != nil {
						errMu.Lock()
						opt.OnParseError(o, err)
						errMu.Unlock()
					}
					continue
				}
				out = append(out, rec)
			}
			docs.Add(int64(len(frames)))
			recs.Add(int64(len(out)))
			perObject[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	stats.Bytes = bytesRead.Load()
	stats.Documents = docs.Load()
	stats.Records = recs.Load()
	stats.ParseErrors = bad.Load()

	all := make([]T, 0, stats.Records)
	for _, part := range perObject {
		all = append(all, part...)
	}

	log.Info("read complete",
		zap.Int("objects", stats.Objects),
		zap.String("bytes", humanize.Bytes(uint64(stats.Bytes))),
		zap.Int64("documents", stats.Documents),
		zap.Int64("records", stats.Records),
		zap.Int64("parse_errors", stats.ParseErrors),
		zap.Duration("elapsed", time.Since(start)),
	)
	return all, stats, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
