// Package metrics records operational metrics from the song-play ETL.
//
// Callers use the package-level helpers (RecordStep, RecordRow, RecordTable,
// RecordBytes); the concrete metrics system is installed with SetBackend and
// defaults to a no-op, so instrumentation is always safe to call. Prometheus
// Pushgateway and Datadog backends live in subpackages.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by this package.
const (
	StepTotal           = "etl_step_total"
	StepDurationSeconds = "etl_step_duration_seconds"
	RecordsTotal        = "etl_records_total"
	TableRowsTotal      = "etl_table_rows_total"
	TableBytesTotal     = "etl_table_bytes_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep records latency and success/failure of one pipeline step
// (session, songs, logs, parquet, warehouse).
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}

	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRow increments a record-level counter for the given job and kind.
//
// Kinds mirror the run summary:
//   - "song_records", "log_records"
//   - "parse_errors"
//   - "filtered" (log events that passed the page filter)
//   - "matched" (song plays joined to a song)
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordTable counts rows written for one star-schema table by one sink
// ("parquet" or the warehouse kind).
func RecordTable(job, table, sink string, rows int64) {
	if rows <= 0 {
		return
	}
	current().IncCounter(TableRowsTotal, float64(rows), Labels{
		"job":   job,
		"table": table,
		"sink":  sink,
	})
}

// RecordBytes counts Parquet bytes uploaded for one table.
func RecordBytes(job, table string, n int64) {
	if n <= 0 {
		return
	}
	current().IncCounter(TableBytesTotal, float64(n), Labels{
		"job":   job,
		"table": table,
	})
}
