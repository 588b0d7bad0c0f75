/*
Package jsonpath resolves dotted/bracket path expressions against the
generic value tree produced by decoding a captured request body.

The grammar is intentionally small: dot-separated keys, with an optional
`[N]` index suffix on any segment (e.g. "events[0].properties.name" or
equivalently "events.0.properties.name" — both forms are accepted). It
walks the same `any` tree whether that tree came from encoding/json or
from decoding a form-encoded body into a map[string][]string, which is
why it is hand-rolled rather than built on a JSON-text path library: a
library like gjson only ever sees raw JSON bytes, but the extractor needs
one resolver that treats both payload shapes uniformly.
*/
package jsonpath

import (
	"strconv"
	"strings"
)

// segment is one step of a parsed path: either a map key or an array index.
type segment struct {
	key     string
	index   int
	isIndex bool
}

// parsePath splits a path expression into segments. Accepts both
// "a.b[0].c" and "a.b.0.c" forms.
func parsePath(path string) []segment {
	var segs []segment
	for _, part := range strings.Split(path, ".") {
		for part != "" {
			if idx := strings.IndexByte(part, '['); idx >= 0 {
				if idx > 0 {
					segs = append(segs, segment{key: part[:idx]})
				}
				end := strings.IndexByte(part[idx:], ']')
				if end < 0 {
					// Malformed bracket — treat the rest as a literal key.
					segs = append(segs, segment{key: part})
					break
				}
				end += idx
				numStr := part[idx+1 : end]
				if n, err := strconv.Atoi(numStr); err == nil {
					segs = append(segs, segment{index: n, isIndex: true})
				} else {
					segs = append(segs, segment{key: numStr})
				}
				part = part[end+1:]
				continue
			}
			if n, err := strconv.Atoi(part); err == nil {
				segs = append(segs, segment{index: n, isIndex: true})
			} else {
				segs = append(segs, segment{key: part})
			}
			part = ""
		}
	}
	return segs
}

// Get resolves a dotted/bracket path against a generic value tree. The
// second return is false when any intermediate segment misses — "no
// value", never a panic.
func Get(value any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	segs := parsePath(path)
	return walk(value, segs)
}

func walk(value any, segs []segment) (any, bool) {
	if len(segs) == 0 {
		return value, true
	}
	seg := segs[0]
	rest := segs[1:]

	if seg.isIndex {
		arr, ok := value.([]any)
		if !ok || seg.index < 0 || seg.index >= len(arr) {
			return nil, false
		}
		return walk(arr[seg.index], rest)
	}

	switch m := value.(type) {
	case map[string]any:
		v, ok := m[seg.key]
		if !ok {
			return nil, false
		}
		return walk(v, rest)
	case map[string][]string:
		// Form-decoded payload: a.b means key "a.b" doesn't typically
		// apply, but a bare top-level key does. Single-value fields
		// collapse to a string; multi-value fields stay a []any.
		v, ok := m[seg.key]
		if !ok {
			return nil, false
		}
		if len(rest) == 0 {
			if len(v) == 1 {
				return v[0], true
			}
			out := make([]any, len(v))
			for i, s := range v {
				out[i] = s
			}
			return out, true
		}
		return nil, false
	default:
		return nil, false
	}
}

// GetString resolves path and coerces the result to a string. Returns
// ("", false) if the path misses or the value isn't string-coercible.
func GetString(value any, path string) (string, bool) {
	v, ok := Get(value, path)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	default:
		return "", false
	}
}
