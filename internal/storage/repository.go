// Package storage contains the warehouse contracts shared by the SQL
// backends: a Repository interface, a kind-keyed factory registry, a batched
// loader, and LoadDataset, which replaces one star-schema table.
package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/ypatankar/datalake/internal/ddl"
)

// Repository is one open warehouse connection.
type Repository interface {
	// Exec runs one statement, typically DDL.
	Exec(ctx context.Context, sql string) error
	// CopyFrom bulk-inserts rows (aligned to columns) into table and reports
	// the number of rows inserted.
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	// Dialect describes the backend's DDL.
	Dialect() ddl.Dialect
	Close()
}

// Config selects and configures a backend.
type Config struct {
	Kind string
	DSN  string
	// Schema, when set, qualifies every table name.
	Schema string
}

// Factory opens a Repository for a backend kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for kind. Backends call it from
// init.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// ListKinds returns the registered kinds, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens a Repository of cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
