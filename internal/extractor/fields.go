package extractor

import (
	"strconv"
	"time"

	"github.com/jnakagawa/loggy/internal/jsonpath"
)

func getPath(value any, path string) (any, bool) {
	return jsonpath.Get(value, path)
}

var eventNameProbes = []string{
	"event", "eventName", "event_name", "name", "action", "code", "en", "e", "a", "type", "t",
}

var timestampProbes = []string{
	"timestamp", "time", "ts", "sentAt", "sent_at", "created_at", "client_ts", "client_timestamp",
}

var userIDProbes = []string{"userId", "user_id", "uid"}
var anonIDProbes = []string{"anonymousId", "anonymous_id", "anonId"}

var propertyContainerProbes = []string{
	"properties", "props", "event_data", "data", "payload", "params", "attributes",
}

// probeString tries each key against obj in order, returning the first
// string-coercible hit.
func probeString(obj map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			if s, ok := stringify(v); ok {
				return s, true
			}
		}
	}
	return "", false
}

func stringify(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	default:
		return "", false
	}
}

// eventName resolves the event name for one event object, honoring the
// source's field mapping before falling back to the well-known probe
// order. Never fails: returns "unknown" as a last resort.
func eventName(obj map[string]any, path string) string {
	if path != "" {
		if v, ok := getPath(obj, path); ok {
			if s, ok := stringify(v); ok {
				return s
			}
		}
	}
	if s, ok := probeString(obj, eventNameProbes); ok {
		return s
	}
	return "unknown"
}

// timestamp resolves and normalizes the event timestamp, probing the
// event object and then the outer payload for the same candidate keys.
// Unparsable or absent timestamps fall back to "now".
func timestamp(obj map[string]any, outer map[string]any, path string) time.Time {
	if path != "" {
		if v, ok := getPath(obj, path); ok {
			if t, ok := parseTimestamp(v); ok {
				return t
			}
		}
	}
	for _, probe := range []map[string]any{obj, outer} {
		if probe == nil {
			continue
		}
		for _, k := range timestampProbes {
			if v, ok := probe[k]; ok {
				if t, ok := parseTimestamp(v); ok {
					return t
				}
			}
		}
	}
	return time.Now().UTC()
}

// parseTimestamp normalizes a raw timestamp value: ISO-8601 strings pass
// through, numbers below 1e10 are Unix seconds, otherwise milliseconds.
func parseTimestamp(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, val); err == nil {
			return t.UTC(), true
		}
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return t.UTC(), true
		}
		if n, err := strconv.ParseFloat(val, 64); err == nil {
			return fromNumeric(n), true
		}
		for _, layout := range []string{time.RFC1123Z, time.RFC1123, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, val); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	case float64:
		return fromNumeric(val), true
	default:
		return time.Time{}, false
	}
}

func fromNumeric(n float64) time.Time {
	const unixSecondsCeiling = 1e10
	if n < unixSecondsCeiling {
		return time.Unix(int64(n), 0).UTC()
	}
	ms := int64(n)
	return time.UnixMilli(ms).UTC()
}

// userAndAnonID resolves user_id/anonymous_id for an event object,
// falling back to the same probe keys on the outer payload.
func userAndAnonID(obj, outer map[string]any, path string) (string, string) {
	userID := ""
	if path != "" {
		if v, ok := getPath(obj, path); ok {
			if s, ok := stringify(v); ok {
				userID = s
			}
		}
	}
	if userID == "" {
		if s, ok := probeString(obj, userIDProbes); ok {
			userID = s
		} else if outer != nil {
			if s, ok := probeString(outer, userIDProbes); ok {
				userID = s
			}
		}
	}

	anonID := ""
	if s, ok := probeString(obj, anonIDProbes); ok {
		anonID = s
	} else if outer != nil {
		if s, ok := probeString(outer, anonIDProbes); ok {
			anonID = s
		}
	}
	return userID, anonID
}

// exclusionKeys are the metadata keys left out of the fallback
// properties container (the event object's own keys minus these).
func exclusionKeys(consumedEventNameKey string) map[string]struct{} {
	excluded := map[string]struct{}{
		"id":      {},
		"context": {},
	}
	for _, k := range timestampProbes {
		excluded[k] = struct{}{}
	}
	for _, k := range userIDProbes {
		excluded[k] = struct{}{}
	}
	for _, k := range anonIDProbes {
		excluded[k] = struct{}{}
	}
	if consumedEventNameKey != "" {
		excluded[consumedEventNameKey] = struct{}{}
	}
	return excluded
}

// properties resolves the properties container for an event object.
func properties(obj map[string]any, containerPath string) map[string]any {
	if containerPath != "" {
		if v, ok := getPath(obj, containerPath); ok {
			if m, ok := v.(map[string]any); ok {
				return m
			}
		}
	}
	for _, key := range propertyContainerProbes {
		if v, ok := obj[key]; ok {
			if m, ok := v.(map[string]any); ok {
				return m
			}
		}
	}

	consumed := ""
	for _, k := range eventNameProbes {
		if _, ok := obj[k]; ok {
			consumed = k
			break
		}
	}
	excluded := exclusionKeys(consumed)
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if _, skip := excluded[k]; skip {
			continue
		}
		out[k] = v
	}
	return out
}

// eventContext resolves the context map for an event, falling back to
// the outer payload's context.
func eventContext(obj, outer map[string]any) any {
	if v, ok := obj["context"]; ok {
		return v
	}
	if outer != nil {
		if v, ok := outer["context"]; ok {
			return v
		}
	}
	return nil
}

// asObject coerces a batch element into a map, treating non-map elements
// (bare strings, numbers) as a single field named "value" so extraction
// never panics on an odd payload shape.
func asObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{"value": v}
}

// outerObject coerces the top-level decoded payload into a map for
// outer-payload fallback probes; non-map payloads contribute nothing.
func outerObject(payload any) map[string]any {
	if m, ok := payload.(map[string]any); ok {
		return m
	}
	return nil
}
