package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ypatankar/datalake/internal/schema"
)

// DefaultBatchSize is used when LoadDataset gets a non-positive batch size.
const DefaultBatchSize = 10000

// TableName returns the warehouse name of t, qualified by dbSchema if set.
func TableName(dbSchema string, t schema.Table) string {
	if dbSchema == "" {
		return t.Name
	}
	return dbSchema + "." + t.Name
}

// LoadDataset replaces the warehouse table of ds: DROP TABLE IF EXISTS, then
// CREATE TABLE from the dataset's schema, then a batched bulk load. It returns
// the number of rows inserted.
func LoadDataset(ctx context.Context, repo Repository, dbSchema string, ds schema.Dataset, batchSize int, log *zap.Logger) (int64, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	start := time.Now()
	d := repo.Dialect()
	name := TableName(dbSchema, ds.Table)
	def := d.FromTable(ds.Table, name)

	create, err := d.CreateTableSQL(def)
	if err != nil {
		return 0, err
	}
	if err := repo.Exec(ctx, d.DropTableSQL(name)); err != nil {
		return 0, errors.Wrapf(err, "storage: drop %s", name)
	}
	if err := repo.Exec(ctx, create); err != nil {
		return 0, errors.Wrapf(err, "storage: create %s", name)
	}

	in := make(chan []any, batchSize)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(in)
		for _, row := range ds.Rows {
			select {
			case in <- row:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var total int64
	g.Go(func() error {
		n, err := LoadBatches(gctx, log.With(zap.String("table", name)), def.ColumnNames(), in, batchSize,
			func(ctx context.Context, cols []string, rows [][]any) (int64, error) {
				return repo.CopyFrom(ctx, name, cols, rows)
			})
		total = n
		return err
	})
	if err := g.Wait(); err != nil {
		return total, errors.Wrapf(err, "storage: load %s", name)
	}

	log.Info("warehouse table loaded",
		zap.String("table", name),
		zap.String("dialect", d.Name),
		zap.Int64("rows", total),
		zap.Duration("elapsed", time.Since(start)),
	)
	return total, nil
}
