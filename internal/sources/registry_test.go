package sources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch_ScoresMoreSpecificPatternHigher(t *testing.T) {
	r := NewRegistry()
	r.Replace([]Source{
		{ID: "generic", Name: "generic", Enabled: true, Domain: "example.com"},
		{ID: "specific", Name: "specific", Enabled: true, Domain: "example.com", URLPattern: "/v1/track*"},
	})

	s, ok := r.Match("https://example.com/v1/track?x=1")
	require.True(t, ok)
	assert.Equal(t, "specific", s.ID)

	s, ok = r.Match("https://example.com/other")
	require.True(t, ok)
	assert.Equal(t, "generic", s.ID)
}

func TestMatch_NoneMatchesDisabledSource(t *testing.T) {
	r := NewRegistry()
	r.Replace([]Source{{ID: "x", Enabled: false, Domain: "example.com"}})
	_, ok := r.Match("https://example.com/foo")
	assert.False(t, ok)
}

func TestAdd_ClearsUnmatchedForDomain(t *testing.T) {
	r := NewRegistry()
	r.TrackUnmatched("https://example.com/api/v1/track", map[string]any{"a": 1})
	_, ok := r.UnmatchedDomain("example.com")
	require.True(t, ok)

	r.Add(Source{ID: "x", Enabled: true, Domain: "example.com"})
	_, ok = r.UnmatchedDomain("example.com")
	assert.False(t, ok)
}

func TestTrackUnmatched_RequiresAnalyticsLookingPath(t *testing.T) {
	r := NewRegistry()
	ok := r.TrackUnmatched("https://example.com/static/app.js", nil)
	assert.False(t, ok)

	ok = r.TrackUnmatched("https://example.com/v1/track", nil)
	assert.True(t, ok)
}

func TestUnmatched_SortedByCountDescending(t *testing.T) {
	r := NewRegistry()
	r.TrackUnmatched("https://a.com/collect", nil)
	r.TrackUnmatched("https://b.com/collect", nil)
	r.TrackUnmatched("https://b.com/collect", nil)

	list := r.Unmatched()
	require.Len(t, list, 2)
	assert.Equal(t, "b.com", list[0].Domain)
	assert.Equal(t, 2, list[0].Count)
}

func TestBaseDomain(t *testing.T) {
	cases := map[string]string{
		"api.segment.io":    "segment.io",
		"www.example.co.uk": "example.co.uk",
		"example.com":       "example.com",
		"alb.reddit.com":    "reddit.com",
		"192.168.1.1":       "192.168.1.1",
	}
	for host, want := range cases {
		assert.Equal(t, want, BaseDomain(host), "host=%s", host)
	}
}

func TestBaseDomain_Idempotent(t *testing.T) {
	hosts := []string{"api.segment.io", "www.example.co.uk", "example.com"}
	for _, h := range hosts {
		b := BaseDomain(h)
		assert.Equal(t, b, BaseDomain(b))
	}
}

func TestDefaults_SeedCount(t *testing.T) {
	assert.Len(t, Defaults(), 9)
}

func TestDefaults_MeasurementProtocolOutranksGenericCollect(t *testing.T) {
	r := NewRegistry()
	r.Replace(Defaults())

	s, ok := r.Match("https://www.google-analytics.com/mp/collect?measurement_id=G-1")
	require.True(t, ok)
	assert.Equal(t, "google-analytics-mp", s.ID)

	s, ok = r.Match("https://www.google-analytics.com/g/collect?v=2")
	require.True(t, ok)
	assert.Equal(t, "google-analytics", s.ID)
}

func TestSeedUnmatched_PreservesPersistedCounters(t *testing.T) {
	r := NewRegistry()
	seeded := UnmatchedEntry{
		Domain:     "example.com",
		ExampleURL: "https://example.com/v1/track",
		Count:      7,
		FirstSeen:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		LastSeen:   time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	r.SeedUnmatched([]UnmatchedEntry{seeded})

	got, ok := r.UnmatchedDomain("example.com")
	require.True(t, ok)
	assert.Equal(t, seeded, got)
}
