// Package mssql implements a Microsoft SQL Server repository using the
// go-mssqldb bulk copy API.
package mssql

import (
	"context"
	"database/sql"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
	"github.com/pkg/errors"

	"github.com/ypatankar/datalake/internal/ddl"
	"github.com/ypatankar/datalake/internal/schema"
)

// Dialect is the SQL Server DDL dialect. NVARCHAR(MAX) cannot be indexed, so
// key columns use NVARCHAR(450).
var Dialect = ddl.Dialect{
	Name:  "mssql",
	Quote: msIdent,
	Types: map[schema.Kind]string{
		schema.KindString:    "NVARCHAR(MAX)",
		schema.KindInt64:     "BIGINT",
		schema.KindFloat64:   "FLOAT",
		schema.KindTimestamp: "DATETIME2",
	},
	KeyTypes: map[schema.Kind]string{
		schema.KindString: "NVARCHAR(450)",
	},
}

// Config holds MSSQL repository configuration.
type Config struct {
	DSN string
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, errors.Wrap(err, "mssql dsn")
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, errors.Wrap(err, "sql.Open")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, errors.Wrap(err, "ping")
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// CopyFrom bulk-copies rows into table inside one transaction.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(msFQN(table), mssql.BulkOptions{}, columns...))
	if err != nil {
		rollback()
		return 0, errors.Wrap(err, "prepare bulk")
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			rollback()
			return 0, errors.Wrapf(err, "bulk row %d", i)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return 0, errors.Wrap(err, "bulk finalize")
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return 0, errors.Wrap(err, "rows affected")
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit")
	}
	return n, nil
}

// Exec executes a SQL statement against the pool.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	_, err := r.db.ExecContext(ctx, sqlText)
	return err
}

// Dialect returns the SQL Server DDL dialect.
func (r *Repository) Dialect() ddl.Dialect { return Dialect }

// msIdent safely quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.songplay" to
// "[dbo].[songplay]".
func msFQN(name string) string { return Dialect.FQN(name) }
