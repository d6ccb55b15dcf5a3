package mssql

import (
	"context"
	"strings"
	"testing"

	"github.com/ypatankar/datalake/internal/schema"
	"github.com/ypatankar/datalake/internal/storage"
)

// TestMSSQLStorageRegistrationUsesNewRepositoryHook verifies that the "mssql"
// storage backend registered in init() uses the newRepository hook and that
// the wrappedRepo correctly propagates configuration and close behavior.
func TestMSSQLStorageRegistrationUsesNewRepositoryHook(t *testing.T) {
	ctx := context.Background()

	origNewRepository := newRepository
	defer func() { newRepository = origNewRepository }()

	var (
		called   bool
		gotCfg   Config
		closed   bool
		fakeRepo = &Repository{}
	)

	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		called = true
		gotCfg = cfg
		return fakeRepo, func() { closed = true }, nil
	}

	cfg := storage.Config{Kind: "mssql", DSN: "sqlserver://example", Schema: "dbo"}

	repo, err := storage.New(ctx, cfg)
	if err != nil {
		t.Fatalf("storage.New() error = %v, want nil", err)
	}
	if !called {
		t.Fatalf("newRepository hook was not called")
	}
	if gotCfg.DSN != cfg.DSN {
		t.Errorf("hook cfg.DSN = %q, want %q", gotCfg.DSN, cfg.DSN)
	}

	w, ok := repo.(*wrappedRepo)
	if !ok {
		t.Fatalf("storage.New() type = %T, want *wrappedRepo", repo)
	}
	if w.Repository != fakeRepo {
		t.Fatalf("wrappedRepo.Repository = %p, want %p", w.Repository, fakeRepo)
	}

	repo.Close()
	if !closed {
		t.Fatalf("wrappedRepo.Close() did not invoke closeFn")
	}
}

func TestNewRepository_BadDSN(t *testing.T) {
	t.Parallel()

	if _, _, err := NewRepository(context.Background(), Config{DSN: "sqlserver://host?connection+timeout=abc"}); err == nil {
		t.Fatal("expected DSN validation error")
	}
}

func TestMsFQN(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"songplay":     "[songplay]",
		"dbo.songplay": "[dbo].[songplay]",
		"we]ird":       "[we]]ird]",
	}
	for in, want := range tests {
		if got := msFQN(in); got != want {
			t.Errorf("msFQN(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDialect_Time(t *testing.T) {
	t.Parallel()

	sql, err := Dialect.CreateTableSQL(Dialect.FromTable(schema.Time, "dbo.time"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"CREATE TABLE [dbo].[time]",
		"[start_time] DATETIME2 NOT NULL",
		"[weekday] BIGINT NOT NULL",
		"PRIMARY KEY ([start_time])",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("DDL lacks %q:\n%s", want, sql)
		}
	}

	user, err := Dialect.CreateTableSQL(Dialect.FromTable(schema.User, "user"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(user, "[user_id] NVARCHAR(450) NOT NULL") || !strings.Contains(user, "[level] NVARCHAR(MAX)") {
		t.Errorf("unexpected user DDL:\n%s", user)
	}
}
