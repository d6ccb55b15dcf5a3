// Package mysql implements a MySQL-backed storage.Repository on
// github.com/go-sql-driver/mysql. Bulk loads are multi-row INSERT statements
// chunked under the server's placeholder limit, all in one transaction.
package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/ypatankar/datalake/internal/ddl"
	"github.com/ypatankar/datalake/internal/schema"
)

// maxPlaceholders is the largest number of ? markers one prepared statement
// may carry.
const maxPlaceholders = 65535

// Dialect is the MySQL DDL dialect. TEXT columns cannot be primary keys
// without a prefix length, so keys use VARCHAR.
var Dialect = ddl.Dialect{
	Name:  "mysql",
	Quote: myIdent,
	Types: map[schema.Kind]string{
		schema.KindString:    "TEXT",
		schema.KindInt64:     "BIGINT",
		schema.KindFloat64:   "DOUBLE",
		schema.KindTimestamp: "DATETIME(6)",
	},
	KeyTypes: map[schema.Kind]string{
		schema.KindString: "VARCHAR(255)",
	},
}

// Config holds MySQL repository configuration.
type Config struct {
	DSN string // go-sql-driver DSN, e.g. user:pass@tcp(host:3306)/dw
}

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository validates the DSN, connects and returns a Repository plus its
// close function.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, nil, errors.Wrap(err, "mysql dsn")
	}
	// time.Time values round-trip through DATETIME only with parseTime.
	mc.ParseTime = true
	if mc.Loc == nil {
		mc.Loc = time.UTC
	}
	conn, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, nil, errors.Wrap(err, "mysql connector")
	}
	db := sql.OpenDB(conn)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, errors.Wrap(err, "mysql: ping")
	}
	return &Repository{db: db, cfg: cfg}, func() { _ = db.Close() }, nil
}

// CopyFrom inserts rows into table with multi-row INSERT statements.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, errors.New("mysql: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "mysql: begin tx")
	}
	rollback := func() { _ = tx.Rollback() }

	var inserted int64
	for _, chunk := range chunkRows(rows, len(columns)) {
		args := make([]any, 0, len(chunk)*len(columns))
		for i, row := range chunk {
			if len(row) != len(columns) {
				rollback()
				return 0, errors.Errorf("mysql: CopyFrom: row %d has %d values, want %d", i, len(row), len(columns))
			}
			args = append(args, row...)
		}
		res, err := tx.ExecContext(ctx, insertSQL(table, columns, len(chunk)), args...)
		if err != nil {
			rollback()
			return 0, errors.Wrapf(err, "mysql: insert into %s", table)
		}
		n, err := res.RowsAffected()
		if err != nil {
			rollback()
			return 0, errors.Wrap(err, "mysql: rows affected")
		}
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "mysql: commit")
	}
	return inserted, nil
}

// Exec executes one statement against the pool.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	_, err := r.db.ExecContext(ctx, sqlText)
	return err
}

// Dialect returns the MySQL DDL dialect.
func (r *Repository) Dialect() ddl.Dialect { return Dialect }

// chunkRows splits rows so no chunk needs more than maxPlaceholders markers.
func chunkRows(rows [][]any, width int) [][][]any {
	per := maxPlaceholders / width
	if per < 1 {
		per = 1
	}
	out := make([][][]any, 0, len(rows)/per+1)
	for len(rows) > per {
		out = append(out, rows[:per])
		rows = rows[per:]
	}
	if len(rows) > 0 {
		out = append(out, rows)
	}
	return out
}

// insertSQL renders INSERT INTO t (c...) VALUES (?,...),(?,...) for n rows.
func insertSQL(table string, columns []string, n int) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = myIdent(c)
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(Dialect.FQN(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") VALUES ")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(tuple)
	}
	return b.String()
}

// myIdent quotes a MySQL identifier with backticks.
func myIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }
