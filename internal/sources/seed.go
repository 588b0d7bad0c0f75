package sources

// Defaults returns the built-in source rules the registry ships with,
// in the insertion order spec.md prescribes: more specific rules
// (non-empty URLPattern) for a shared domain are registered ahead of
// generic ones, so plain insertion-order search already picks the right
// one even before Match's scoring tiebreak kicks in.
func Defaults() []Source {
	return []Source{
		{
			ID:         "google-analytics-mp",
			Name:       "Google Analytics Measurement Protocol",
			Enabled:    true,
			Domain:     "google-analytics.com",
			URLPattern: "/mp/collect*",
			FieldMappings: FieldMappings{
				EventName: "events[0].name",
			},
			BatchPath: "events",
		},
		{
			ID:         "google-analytics",
			Name:       "Google Analytics",
			Enabled:    true,
			Domain:     "google-analytics.com",
			URLPattern: "/*/collect*",
			FieldMappings: FieldMappings{
				EventName: "en",
			},
		},
		{
			ID:         "segment",
			Name:       "Segment",
			Enabled:    true,
			Domain:     "segment.io",
			URLPattern: "/v1/*",
			BatchPath:  "batch",
		},
		{
			ID:        "amplitude",
			Name:      "Amplitude",
			Enabled:   true,
			Domain:    "amplitude.com",
			BatchPath: "events",
		},
		{
			ID:      "mixpanel",
			Name:    "Mixpanel",
			Enabled: true,
			Domain:  "mixpanel.com",
			FieldMappings: FieldMappings{
				EventName: "event",
			},
		},
		{
			ID:         "reddit-pixel",
			Name:       "Reddit Pixel",
			Enabled:    true,
			Domain:     "reddit.com",
			URLPattern: "/rp.gif*",
			FieldMappings: FieldMappings{
				EventName: "event",
			},
		},
		{
			ID:      "heap",
			Name:    "Heap",
			Enabled: true,
			Domain:  "heapanalytics.com",
			FieldMappings: FieldMappings{
				EventName: "a",
			},
			BatchPath: "b",
		},
		{
			ID:        "posthog",
			Name:      "PostHog",
			Enabled:   true,
			Domain:    "posthog.com",
			BatchPath: "batch",
		},
		{
			ID:        "rudderstack",
			Name:      "RudderStack",
			Enabled:   true,
			Domain:    "rudderstack.com",
			BatchPath: "batch",
		},
	}
}
