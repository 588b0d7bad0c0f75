package extractor

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jnakagawa/loggy/internal/sources"
)

// Extract decodes body and produces zero or more captured events for it.
// When src is the zero-value Source, extraction still runs (using only
// the well-known probe order) and the resulting events carry an empty
// SourceID/SourceName.
//
// Any failure in decoding or locating a batch yields zero events, never
// an error — C4's entire job is to never be the reason a proxied request
// breaks.
func Extract(body []byte, src sources.Source, requestURL string) []Event {
	payload, ok := decode(body)
	if !ok {
		return nil
	}

	batch := locateBatch(payload, src.BatchPath)
	outer := outerObject(payload)
	now := time.Now().UTC()

	events := make([]Event, 0, len(batch))
	for _, raw := range batch {
		obj := asObject(raw)

		name := eventName(obj, src.ResolvedEventNamePath())
		ts := timestamp(obj, outer, src.FieldMappings.Timestamp)
		userID, anonID := userAndAnonID(obj, outer, src.FieldMappings.UserID)
		props := properties(obj, src.FieldMappings.PropertyContainer)
		ctx := eventContext(obj, outer)

		events = append(events, Event{
			ID:          uuid.New().String(),
			Timestamp:   ts,
			Event:       name,
			Properties:  props,
			Context:     ctx,
			UserID:      userID,
			AnonymousID: anonID,
			Type:        "track",
			SourceID:    src.ID,
			SourceName:  src.Name,
			RawPayload:  payload,
			Metadata: Metadata{
				URL:        requestURL,
				CapturedAt: now,
			},
		})
	}
	return events
}

// ExtractSafe wraps Extract with panic recovery: a malformed payload
// that trips an unexpected type assertion anywhere in the pipeline still
// yields zero events and a logged error rather than taking down the
// connection goroutine handling the proxied request.
func ExtractSafe(body []byte, src sources.Source, requestURL string) (events []Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic extracting events from %s: %v", requestURL, r)
			events = nil
		}
	}()
	return Extract(body, src, requestURL), nil
}
