// Package config provides configuration models and helpers for the pipeline.
//
// This file adds a lightweight linter for Pipeline values. It performs static
// checks over a decoded Pipeline and returns a list of issues (errors and
// warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ypatankar/datalake/internal/blob"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that is surfaced but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "output.base",
// "transform[1].options.policy").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Known values shared with the builders and sinks.
var (
	DedupTables  = []string{"song", "artist", "user", "time"}
	DedupPolicy  = []string{"keep-first", "keep-last", "most-complete", "latest-ts"}
	Compressions = []string{"snappy", "gzip", "zstd", "brotli", "none"}
	Warehouses   = []string{"postgres", "sqlite", "mysql", "mssql"}
)

// ValidatePipeline performs static validation of a Pipeline. It does not
// mutate the pipeline; call ApplyDefaults first to lint the effective config.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateInput(p.Input)...)
	issues = append(issues, validateTransforms(p.Transform)...)
	issues = append(issues, validateOutput(p.Output)...)
	issues = append(issues, validateWarehouse(p.Warehouse)...)
	issues = append(issues, validateRuntime(p.Runtime)...)

	return issues
}

func validateLocation(path, raw string) []Issue {
	if strings.TrimSpace(raw) == "" {
		return []Issue{{Severity: SeverityError, Path: path, Message: path + " must not be empty"}}
	}
	if _, err := blob.ParseLocation(raw); err != nil {
		return []Issue{{Severity: SeverityError, Path: path, Message: err.Error()}}
	}
	return nil
}

func validateInput(in Input) []Issue {
	issues := validateLocation("input.base", in.Base)
	if strings.TrimSpace(in.SongData) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "input.song_data", Message: "song_data pattern must not be empty"})
	}
	if strings.TrimSpace(in.LogData) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "input.log_data", Message: "log_data pattern must not be empty"})
	}
	if k := in.Parser.Kind; k != "" && k != "json" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "input.parser.kind",
			Message:  fmt.Sprintf("unsupported parser kind %q; only json is implemented", k),
		})
	}
	if n := in.Parser.Options.Int("max_document_bytes", 0); n < 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "input.parser.options.max_document_bytes", Message: "must not be negative"})
	}
	return issues
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func validateTransforms(ts []Transform) []Issue {
	var issues []Issue
	seenDedup := map[string]int{}

	for i, t := range ts {
		path := fmt.Sprintf("transform[%d]", i)
		switch t.Kind {
		case "":
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".kind", Message: "transform kind must not be empty"})

		case "dedup":
			table := t.Options.String("table", "")
			if !contains(DedupTables, table) {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path + ".options.table",
					Message:  fmt.Sprintf("dedup table %q must be one of %v", table, DedupTables),
				})
			} else if prev, dup := seenDedup[table]; dup {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Path:     path,
					Message:  fmt.Sprintf("dedup for %q already configured at transform[%d]; the last one wins", table, prev),
				})
			}
			seenDedup[table] = i
			policy := t.Options.String("policy", "")
			if !contains(DedupPolicy, policy) {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path + ".options.policy",
					Message:  fmt.Sprintf("dedup policy %q must be one of %v", policy, DedupPolicy),
				})
			} else if policy == "latest-ts" && table != "user" {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path + ".options.policy",
					Message:  "latest-ts is only defined for the user table",
				})
			}

		case "page_filter":
			if strings.TrimSpace(t.Options.String("page", "")) == "" {
				issues = append(issues, Issue{Severity: SeverityError, Path: path + ".options.page", Message: "page_filter requires a non-empty page"})
			}

		case "join":
			// normalize_unicode is the only knob; any value is acceptable.

		case "geohash":
			if n := t.Options.Int("precision", 7); n < 1 || n > 12 {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path + ".options.precision",
					Message:  fmt.Sprintf("geohash precision %d must be in 1..12", n),
				})
			}

		default:
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path + ".kind",
				Message:  fmt.Sprintf("unknown transform kind %q is ignored", t.Kind),
			})
		}
	}
	return issues
}

func validateOutput(o Output) []Issue {
	issues := validateLocation("output.base", o.Base)
	if c := strings.ToLower(o.Compression); c != "" && !contains(Compressions, c) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "output.compression",
			Message:  fmt.Sprintf("compression %q must be one of %v", o.Compression, Compressions),
		})
	}
	return issues
}

func validateWarehouse(w Warehouse) []Issue {
	if strings.TrimSpace(w.Kind) == "" {
		return nil
	}
	var issues []Issue
	if !contains(Warehouses, w.Kind) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "warehouse.kind",
			Message:  fmt.Sprintf("unknown warehouse kind %q; ensure a matching backend is registered", w.Kind),
		})
	}
	if strings.TrimSpace(w.DSN) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "warehouse.dsn", Message: "warehouse.dsn must not be empty"})
	}
	if w.Kind == "sqlite" && w.Schema != "" {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: "warehouse.schema", Message: "sqlite has no schemas; warehouse.schema is ignored"})
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.ReaderWorkers < 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "runtime.reader_workers", Message: "reader_workers must not be negative"})
	}
	if r.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.batch_size",
			Message:  fmt.Sprintf("batch_size=%d; non-positive batch sizes fall back to the loader default", r.BatchSize),
		})
	}
	if r.TimeZone != "" {
		if _, err := time.LoadLocation(r.TimeZone); err != nil {
			issues = append(issues, Issue{Severity: SeverityError, Path: "runtime.time_zone", Message: err.Error()})
		}
	}
	return issues
}
