package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnakagawa/loggy/internal/sources"
)

func TestExtract_SegmentBatch(t *testing.T) {
	body := []byte(`{"batch":[{"event":"Viewed","userId":"u1"},{"event":"Clicked","userId":"u1"}],"sentAt":"2024-01-01T00:00:00Z"}`)
	src := sources.Source{ID: "segment", Name: "Segment", BatchPath: "batch"}

	events := Extract(body, src, "https://api.segment.io/v1/batch")
	require.Len(t, events, 2)
	assert.Equal(t, "Viewed", events[0].Event)
	assert.Equal(t, "Clicked", events[1].Event)
	assert.Equal(t, "u1", events[0].UserID)
	assert.Equal(t, "segment", events[0].SourceID)
}

func TestExtract_GAMeasurementProtocol(t *testing.T) {
	body := []byte(`{"client_id":"c","events":[{"name":"page_view","params":{"page":"/x"}}]}`)
	src := sources.Source{
		ID:   "google-analytics-mp",
		Name: "Google Analytics Measurement Protocol",
		FieldMappings: sources.FieldMappings{
			EventName: "events[0].name",
		},
		BatchPath: "events",
	}

	events := Extract(body, src, "https://www.google-analytics.com/mp/collect?measurement_id=G-1")
	require.Len(t, events, 1)
	assert.Equal(t, "page_view", events[0].Event)
	assert.Equal(t, "/x", events[0].Properties["page"])
	assert.Equal(t, "google-analytics-mp", events[0].SourceID)
}

func TestExtract_MixpanelSingleEvent(t *testing.T) {
	body := []byte(`{"event":"Login","properties":{"ok":true}}`)
	src := sources.Source{ID: "mixpanel", Name: "Mixpanel"}

	events := Extract(body, src, "https://api.mixpanel.com/track")
	require.Len(t, events, 1)
	assert.Equal(t, "Login", events[0].Event)
	assert.Equal(t, true, events[0].Properties["ok"])
}

func TestExtract_UnmatchedStillParsesJSON(t *testing.T) {
	body := []byte(`{"event":"whatever"}`)
	events := Extract(body, sources.Source{}, "https://example.com/api/v1/track")
	require.Len(t, events, 1)
	assert.Empty(t, events[0].SourceID)
}

func TestExtract_FormEncodedBody(t *testing.T) {
	body := []byte(`event=Signup&userId=u2`)
	events := Extract(body, sources.Source{}, "https://example.com/submit")
	require.Len(t, events, 1)
	assert.Equal(t, "Signup", events[0].Event)
	assert.Equal(t, "u2", events[0].UserID)
}

func TestExtract_UnparseableBodyYieldsNoEvents(t *testing.T) {
	events := Extract([]byte("not json, and invalid query escape %zz"), sources.Source{}, "https://example.com/x")
	assert.Nil(t, events)
}

func TestExtract_EmptyBodyYieldsNoEvents(t *testing.T) {
	events := Extract([]byte(""), sources.Source{}, "https://example.com/x")
	assert.Nil(t, events)
}

func TestParseTimestamp_SecondsVsMillis(t *testing.T) {
	secs, ok := parseTimestamp(float64(1700000000))
	require.True(t, ok)
	millis, ok := parseTimestamp(float64(1700000000000))
	require.True(t, ok)
	assert.Equal(t, secs.Unix(), millis.Unix())
}

func TestEventOrder_PreservedFromBatch(t *testing.T) {
	body := []byte(`{"events":[{"event":"A"},{"event":"B"},{"event":"C"}]}`)
	src := sources.Source{BatchPath: "events"}
	events := Extract(body, src, "https://example.com/x")
	require.Len(t, events, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{events[0].Event, events[1].Event, events[2].Event})
}
