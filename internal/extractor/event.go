/*
Package extractor turns a decompressed request body plus the source rule
that matched its URL into zero or more normalized captured events. It is
the schema-agnostic half of the pipeline: C2 hands it raw bytes, C3 hands
it (optionally) a source's field mappings, and it does the rest.
*/
package extractor

import "time"

// Metadata captures request-level context the extractor itself has no
// way to know: the URL it came from and when extraction happened.
type Metadata struct {
	URL        string    `json:"url"`
	CapturedAt time.Time `json:"captured_at"`
}

// Event is the normalized record produced by extraction. A buffered event
// always references the source that matched at capture time: the proxy
// records traffic with no matching source as an unmatched domain instead
// of buffering its events. SourceID/SourceName are empty only when Extract
// is called with the zero-value Source.
type Event struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	Event         string         `json:"event"`
	Properties    map[string]any `json:"properties"`
	Context       any            `json:"context,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	AnonymousID   string         `json:"anonymous_id,omitempty"`
	Type          string         `json:"type"`
	SourceID      string         `json:"source_id"`
	SourceName    string         `json:"source_name"`
	RawPayload    any            `json:"raw_payload"`
	Metadata      Metadata       `json:"metadata"`
}
