package parquet

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ypatankar/datalake/internal/schema"
)

// DefaultPartition is the directory value used for NULL partition values.
const DefaultPartition = "__HIVE_DEFAULT_PARTITION__"

// EscapePartitionValue escapes v for use in a col=value directory name the
// way Hive does: control characters and path or glob metacharacters become
// %XX. An empty value is treated as NULL.
func EscapePartitionValue(v string) string {
	if v == "" {
		return DefaultPartition
	}
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		c := v[i]
		if needsEscape(c) {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func needsEscape(c byte) bool {
	if c < 0x20 || c == 0x7f {
		return true
	}
	return strings.IndexByte(`"#%'*/:=?\{}[]^<>|`, c) >= 0
}

// formatPartitionValue renders one partition column value. Time values are
// rendered in UTC.
func formatPartitionValue(v any) string {
	switch t := v.(type) {
	case nil:
		return DefaultPartition
	case string:
		return EscapePartitionValue(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return EscapePartitionValue(strconv.FormatFloat(t, 'g', -1, 64))
	case time.Time:
		return EscapePartitionValue(t.UTC().Format("2006-01-02 15:04:05"))
	default:
		return EscapePartitionValue(fmt.Sprint(t))
	}
}

// partition is the set of rows sharing one partition directory.
type partition struct {
	dir  string // "col=value/col=value", empty when unpartitioned
	rows [][]any
}

// splitPartitions groups rows by the table's partition columns and projects
// them onto the remaining columns. Partitions come back sorted by directory.
// An unpartitioned table yields exactly one partition, even when empty.
func splitPartitions(t schema.Table, rows [][]any) ([]partition, []int, error) {
	partIdx := make([]int, 0, len(t.PartitionBy))
	isPart := make(map[int]bool, len(t.PartitionBy))
	for _, name := range t.PartitionBy {
		i := t.Index(name)
		if i < 0 {
			return nil, nil, errors.Errorf("parquet: table %s partitions by unknown column %q", t.Name, name)
		}
		partIdx = append(partIdx, i)
		isPart[i] = true
	}
	dataIdx := make([]int, 0, len(t.Columns))
	for i := range t.Columns {
		if !isPart[i] {
			dataIdx = append(dataIdx, i)
		}
	}

	project := func(row []any) []any {
		out := make([]any, len(dataIdx))
		for j, i := range dataIdx {
			out[j] = row[i]
		}
		return out
	}

	if len(partIdx) == 0 {
		p := partition{rows: make([][]any, 0, len(rows))}
		for _, row := range rows {
			if len(row) != len(t.Columns) {
				return nil, nil, errors.Errorf("parquet: table %s row has %d values, want %d", t.Name, len(row), len(t.Columns))
			}
			p.rows = append(p.rows, project(row))
		}
		return []partition{p}, dataIdx, nil
	}

	byDir := map[string]*partition{}
	for _, row := range rows {
		if len(row) != len(t.Columns) {
			return nil, nil, errors.Errorf("parquet: table %s row has %d values, want %d", t.Name, len(row), len(t.Columns))
		}
		segs := make([]string, len(partIdx))
		for j, i := range partIdx {
			segs[j] = t.Columns[i].Name + "=" + formatPartitionValue(row[i])
		}
		dir := strings.Join(segs, "/")
		p, ok := byDir[dir]
		if !ok {
			p = &partition{dir: dir}
			byDir[dir] = p
		}
		p.rows = append(p.rows, project(row))
	}

	out := make([]partition, 0, len(byDir))
	for _, p := range byDir {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].dir < out[j].dir })
	return out, dataIdx, nil
}
