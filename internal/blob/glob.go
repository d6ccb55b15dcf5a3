package blob

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Glob returns the keys in st matching pattern, sorted ascending.
//
// The syntax is the Hadoop one: '*' and '?' match within a single path
// segment, '[...]' is a character class, '\' escapes, and '{a,b}' expands to
// alternatives. No wildcard ever crosses '/'. Listing starts at the longest
// wildcard-free directory prefix of each alternative.
func Glob(ctx context.Context, st Store, pattern string) ([]string, error) {
	alts, err := expandBraces(pattern)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []string
	for _, alt := range alts {
		// Validate up front; path.Match only reports bad patterns lazily.
		if _, err := path.Match(alt, ""); err != nil {
			return nil, errors.Wrapf(err, "blob: bad glob %q", pattern)
		}
		prefix := staticPrefix(alt)
		keys, err := st.List(ctx, prefix)
		if err != nil {
			return nil, errors.Wrapf(err, "blob: list %q", prefix)
		}
		for _, k := range keys {
			ok, _ := path.Match(alt, k)
			if !ok {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func hasMeta(s string) bool { return strings.ContainsAny(s, `*?[\`) }

// staticPrefix returns the wildcard-free leading directories of pattern,
// with a trailing slash, or the whole pattern when it has no wildcard.
func staticPrefix(pattern string) string {
	if !hasMeta(pattern) {
		return pattern
	}
	segs := strings.Split(pattern, "/")
	n := 0
	for n < len(segs) && !hasMeta(segs[n]) {
		n++
	}
	if n == 0 {
		return ""
	}
	return strings.Join(segs[:n], "/") + "/"
}

// expandBraces expands the first {a,b,...} group recursively. Nested groups
// are supported; an unbalanced brace is an error.
func expandBraces(p string) ([]string, error) {
	start := -1
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '\\':
			i++
		case '{':
			start = i
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		if strings.Contains(p, "}") && !escapedOnly(p, '}') {
			return nil, errors.Errorf("blob: unbalanced '}' in glob %q", p)
		}
		return []string{p}, nil
	}

	depth := 0
	end := -1
	parts := []string{}
	last := start + 1
	for i := start; i < len(p) && end < 0; i++ {
		switch p[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				parts = append(parts, p[last:i])
				end = i
			}
		case ',':
			if depth == 1 {
				parts = append(parts, p[last:i])
				last = i + 1
			}
		}
	}
	if end < 0 {
		return nil, errors.Errorf("blob: unbalanced '{' in glob %q", p)
	}

	var out []string
	for _, part := range parts {
		sub, err := expandBraces(p[:start] + part + p[end+1:])
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

func escapedOnly(p string, c byte) bool {
	for i := 0; i < len(p); i++ {
		if p[i] == '\\' {
			i++
			continue
		}
		if p[i] == c {
			return false
		}
	}
	return true
}
