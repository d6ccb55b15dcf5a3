// Package engine provides the in-process execution session that the rest of
// the pipeline runs inside: run identity, logger, bounded read parallelism,
// time zone, columnar allocator and a cache of opened object stores.
//
// A Session is created once per run and closed when the run ends.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ypatankar/datalake/internal/blob"
	jsonparser "github.com/ypatankar/datalake/internal/parser/json"
)

// DefaultWorkers bounds concurrent object reads when Config.Workers is zero.
const DefaultWorkers = 8

// Config configures a Session. Zero values select defaults.
type Config struct {
	// AppName labels log lines.
	AppName string
	// RunID overrides the generated run id (tests, reruns).
	RunID string
	// Workers bounds concurrent object reads.
	Workers int
	// TimeZone is an IANA zone name; empty means UTC.
	TimeZone    string
	Credentials blob.Credentials
	Parser      jsonparser.Options
	Logger      *zap.Logger
	// Allocator backs Arrow buffers; defaults to the Go allocator.
	Allocator memory.Allocator
}

// Session is the shared context of one run. It is safe for concurrent use.
type Session struct {
	RunID    string
	Logger   *zap.Logger
	Workers  int
	Location *time.Location
	Alloc    memory.Allocator
	Parser   jsonparser.Options

	creds blob.Credentials
	open  func(context.Context, blob.Location, blob.Credentials) (blob.Store, error)

	mu     sync.Mutex
	stores map[string]blob.Store
	closed bool
}

// NewSession validates cfg and builds a Session. Stores are opened lazily on
// first use.
func NewSession(ctx context.Context, cfg Config) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loc := time.UTC
	if cfg.TimeZone != "" && cfg.TimeZone != "UTC" {
		l, err := time.LoadLocation(cfg.TimeZone)
		if err != nil {
			return nil, errors.Wrapf(err, "engine: time zone %q", cfg.TimeZone)
		}
		loc = l
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AppName != "" {
		logger = logger.Named(cfg.AppName)
	}
	alloc := cfg.Allocator
	if alloc == nil {
		alloc = memory.NewGoAllocator()
	}

	s := &Session{
		RunID:    runID,
		Logger:   logger.With(zap.String("run_id", runID)),
		Workers:  workers,
		Location: loc,
		Alloc:    alloc,
		Parser:   cfg.Parser,
		creds:    cfg.Credentials,
		open:     blob.Open,
		stores:   map[string]blob.Store{},
	}
	s.Logger.Info("session started",
		zap.Int("workers", workers),
		zap.String("time_zone", loc.String()),
	)
	return s, nil
}

// Store returns the store holding loc, opening it on first use. Locations in
// the same bucket share one store.
func (s *Session) Store(ctx context.Context, loc blob.Location) (blob.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("engine: session is closed")
	}
	id := loc.StoreID()
	if st, ok := s.stores[id]; ok {
		return st, nil
	}
	st, err := s.open(ctx, loc, s.creds)
	if err != nil {
		return nil, err
	}
	s.stores[id] = st
	s.Logger.Debug("store opened", zap.String("store", id))
	return st, nil
}

// Close releases every opened store. It is idempotent and reports the first
// close error.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var first error
	for id, st := range s.stores {
		if err := st.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "engine: close store %s", id)
		}
	}
	s.stores = nil
	s.Logger.Info("session closed")
	return first
}
