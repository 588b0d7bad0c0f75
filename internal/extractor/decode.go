package extractor

import (
	"encoding/json"
	"net/url"
	"strings"
)

// decode attempts to parse body as JSON first, then as
// application/x-www-form-urlencoded. Returns (nil, false) if neither
// succeeds — the caller yields zero events in that case, never an error
// that could interrupt the proxied request.
func decode(body []byte) (any, bool) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, false
	}

	var asJSON any
	if err := json.Unmarshal(body, &asJSON); err == nil {
		return asJSON, true
	}

	if form, err := url.ParseQuery(trimmed); err == nil && len(form) > 0 {
		return formToMap(form), true
	}

	return nil, false
}

// formToMap coerces a decoded form body into the same map[string]any
// shape JSON decoding produces, so downstream probes (locateBatch,
// asObject, probeString) can treat both payload kinds uniformly.
// Single-value fields collapse to a string; multi-value fields become
// []any, matching jsonpath.Get's own map[string][]string handling.
func formToMap(form url.Values) map[string]any {
	out := make(map[string]any, len(form))
	for k, v := range form {
		if len(v) == 1 {
			out[k] = v[0]
			continue
		}
		vals := make([]any, len(v))
		for i, s := range v {
			vals[i] = s
		}
		out[k] = vals
	}
	return out
}

// wellKnownBatchKeys are probed in order when a source defines no
// batch_path (or none matched).
var wellKnownBatchKeys = []string{"batch", "events", "data", "items", "records", "hits", "b"}

// locateBatch finds the array of individual event objects within a
// decoded payload. Falls back to treating the whole payload as a single
// event when no array is found.
func locateBatch(payload any, batchPath string) []any {
	if batchPath != "" {
		if v, ok := getPath(payload, batchPath); ok {
			if arr, ok := v.([]any); ok {
				return arr
			}
		}
	}

	if m, ok := payload.(map[string]any); ok {
		for _, key := range wellKnownBatchKeys {
			if v, ok := m[key]; ok {
				if arr, ok := v.([]any); ok {
					return arr
				}
			}
		}
	}

	if arr, ok := payload.([]any); ok {
		return arr
	}

	return []any{payload}
}
