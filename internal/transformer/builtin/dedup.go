// Package builtin contains reusable table transformers.
//
// DeDup is the policy-driven de-duplication step used by every dimension
// table. It collapses rows sharing a unique key and chooses a survivor
// according to a configurable policy:
//
//   - "keep-first"   : keep the earliest occurrence in the input
//   - "keep-last"    : keep the latest occurrence in the input (default)
//   - "most-complete": keep the row with the most non-empty columns;
//     ties break by "keep-last"
//
// "Earliest" and "latest" refer to the order of the input slice, so callers
// sort by origin (or by timestamp) first. Rows whose key cannot be built are
// dropped: a dimension row without its key has nowhere to go.
package builtin

import (
	"sort"
	"strings"

	"github.com/ypatankar/datalake/internal/schema"
)

const (
	PolicyKeepFirst    = "keep-first"
	PolicyKeepLast     = "keep-last"
	PolicyMostComplete = "most-complete"
)

// DeDup implements a configurable, in-memory de-duplication policy over typed
// rows.
type DeDup[T schema.Row] struct {
	// Key returns the unique key of a row; ok=false drops the row.
	Key func(T) (key string, ok bool)

	// Policy selects the survivor among duplicates. Empty means "keep-last".
	Policy string

	// Columns names the values returned by Row.Values. Only needed when
	// PreferFields is set.
	Columns []string

	// PreferFields lists columns that weigh more heavily in "most-complete"
	// selection. This is a soft signal; ties still break by keep-last.
	PreferFields []string
}

// Apply returns the surviving rows ordered by the input position of each
// survivor.
func (d DeDup[T]) Apply(in []T) []T {
	if len(in) == 0 || d.Key == nil {
		return in
	}

	policy := strings.ToLower(strings.TrimSpace(d.Policy))
	if policy == "" {
		policy = PolicyKeepLast
	}

	type slot struct {
		index int
		score int
	}
	winners := make(map[string]slot, len(in))

	prefer := make(map[int]struct{}, len(d.PreferFields))
	for _, f := range d.PreferFields {
		for i, c := range d.Columns {
			if c == f {
				prefer[i] = struct{}{}
			}
		}
	}

	scoreOf := func(r T) int {
		score, bonus := 0, 0
		for i, v := range r.Values() {
			if v == nil {
				continue
			}
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			score++
			if _, ok := prefer[i]; ok {
				bonus++
			}
		}
		return score*10 + bonus
	}

	for i, r := range in {
		key, ok := d.Key(r)
		if !ok {
			continue
		}
		switch policy {
		case PolicyKeepFirst:
			if _, exists := winners[key]; !exists {
				winners[key] = slot{index: i}
			}
		case PolicyMostComplete:
			s := slot{index: i, score: scoreOf(r)}
			if prev, exists := winners[key]; !exists || s.score >= prev.score {
				winners[key] = s
			}
		default:
			winners[key] = slot{index: i}
		}
	}

	indexes := make([]int, 0, len(winners))
	for _, s := range winners {
		indexes = append(indexes, s.index)
	}
	sort.Ints(indexes)
	out := make([]T, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, in[idx])
	}
	return out
}
