package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestAliasResolutionOrder(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		payload map[string]any
		check   func(t *testing.T, e *Event)
	}{
		{
			name:    "id primary alias wins",
			payload: map[string]any{"id": float64(7), "notification_id": float64(9)},
			check: func(t *testing.T, e *Event) {
				require.NotNil(t, e.ID)
				assert.Equal(t, int64(7), *e.ID)
			},
		},
		{
			name:    "id from numeric string",
			payload: map[string]any{"n_id": "42"},
			check: func(t *testing.T, e *Event) {
				require.NotNil(t, e.ID)
				assert.Equal(t, int64(42), *e.ID)
			},
		},
		{
			name:    "headline beats title",
			payload: map[string]any{"headline": "H", "title": "T"},
			check: func(t *testing.T, e *Event) {
				assert.Equal(t, strp("H"), e.Headline)
			},
		},
		{
			name:    "empty value falls through to next alias",
			payload: map[string]any{"headline": "", "title": "T"},
			check: func(t *testing.T, e *Event) {
				assert.Equal(t, strp("T"), e.Headline)
			},
		},
		{
			name:    "numeric location id coerced to string",
			payload: map[string]any{"location_id": float64(15)},
			check: func(t *testing.T, e *Event) {
				assert.Equal(t, strp("15"), e.LocationID)
			},
		},
		{
			name:    "campaign id from geofence alias",
			payload: map[string]any{"geofence_id": "g-1"},
			check: func(t *testing.T, e *Event) {
				assert.Equal(t, strp("g-1"), e.CampaignID)
			},
		},
		{
			name:    "activation from trigger alias",
			payload: map[string]any{"trigger": "ON_ENTER"},
			check: func(t *testing.T, e *Event) {
				assert.Equal(t, strp("ON_ENTER"), e.Activation)
			},
		},
		{
			name:    "post message snake case",
			payload: map[string]any{"completion_message": "thanks"},
			check: func(t *testing.T, e *Event) {
				assert.Equal(t, strp("thanks"), e.PostMessage)
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := Normalize(tt.payload, SourceReceived)
			require.NotNil(t, e)
			tt.check(t, e)
		})
	}
}

func TestWrapperUnwrapping(t *testing.T) {
	t.Parallel()

	t.Run("nested object", func(t *testing.T) {
		t.Parallel()
		e := Normalize(map[string]any{
			"payload": map[string]any{"headline": "inner"},
		}, SourceReceived)
		require.NotNil(t, e)
		assert.Equal(t, strp("inner"), e.Headline)
	})

	t.Run("json encoded string", func(t *testing.T) {
		t.Parallel()
		e := Normalize(map[string]any{
			"notification_payload": `{"headline":"encoded","id":3}`,
		}, SourceReceived)
		require.NotNil(t, e)
		assert.Equal(t, strp("encoded"), e.Headline)
		require.NotNil(t, e.ID)
		assert.Equal(t, int64(3), *e.ID)
	})

	t.Run("wrapper priority order", func(t *testing.T) {
		t.Parallel()
		e := Normalize(map[string]any{
			"payload": map[string]any{"headline": "first"},
			"data":    map[string]any{"headline": "last"},
		}, SourceReceived)
		require.NotNil(t, e)
		assert.Equal(t, strp("first"), e.Headline)
	})

	t.Run("malformed wrapper string preserved as opaque fallback", func(t *testing.T) {
		t.Parallel()
		e := Normalize(map[string]any{
			"payload":  `{"broken":`,
			"headline": "outer",
		}, SourceReceived)
		require.NotNil(t, e)
		assert.Equal(t, strp("outer"), e.Headline)

		var raw map[string]any
		require.NoError(t, json.Unmarshal([]byte(e.Raw), &raw))
		assert.Equal(t, `{"broken":`, raw["payload"])
	})
}

func TestApsAlertFallback(t *testing.T) {
	t.Parallel()

	t.Run("alert object fills headline and body", func(t *testing.T) {
		t.Parallel()
		e := Normalize(map[string]any{
			"aps": map[string]any{"alert": map[string]any{"title": "T", "body": "B"}},
		}, SourceReceived)
		require.NotNil(t, e)
		assert.Equal(t, strp("T"), e.Headline)
		assert.Equal(t, strp("B"), e.Body)
	})

	t.Run("specific alias beats alert", func(t *testing.T) {
		t.Parallel()
		e := Normalize(map[string]any{
			"headline": "specific",
			"aps":      map[string]any{"alert": map[string]any{"title": "T", "body": "B"}},
		}, SourceReceived)
		require.NotNil(t, e)
		assert.Equal(t, strp("specific"), e.Headline)
		assert.Equal(t, strp("B"), e.Body)
	})

	t.Run("bare string alert", func(t *testing.T) {
		t.Parallel()
		e := Normalize(map[string]any{
			"aps": map[string]any{"alert": "hello there"},
		}, SourceReceived)
		require.NotNil(t, e)
		assert.Equal(t, strp("Notification"), e.Headline)
		assert.Equal(t, strp("hello there"), e.Body)
	})
}

func TestTransportDerivation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		source string
		aps    bool
		want   string
	}{
		{source: "received", want: TransportRemote},
		{source: "opened", want: TransportRemote},
		{source: "remote", want: TransportRemote},
		{source: "apns", want: TransportRemote},
		{source: "fcm", want: TransportRemote},
		{source: "push", want: TransportRemote},
		{source: "local", want: TransportLocal},
		{source: "sdk", want: TransportLocal},
		{source: "intent", want: TransportUnknown},
		{source: "intent", aps: true, want: TransportRemote},
	}

	for _, tt := range tests {
		tt := tt
		name := tt.source
		if tt.aps {
			name += "+aps"
		}
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			payload := map[string]any{"headline": "x"}
			if tt.aps {
				payload["aps"] = map[string]any{"alert": "y"}
			}
			e := Normalize(payload, tt.source)
			require.NotNil(t, e)
			assert.Equal(t, tt.want, e.Transport)
		})
	}
}

func TestGeofenceDerivation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		payload map[string]any
		want    bool
	}{
		{"on_enter activation", map[string]any{"activation": "on_enter"}, true},
		{"ON_EXIT activation", map[string]any{"activation": "ON_EXIT"}, true},
		{"other activation", map[string]any{"activation": "IMMEDIATE", "headline": "x"}, false},
		{"campaign id present", map[string]any{"campaignId": float64(4)}, true},
		{"geofence id present", map[string]any{"geofence_id": "g"}, true},
		{"trigger mentions geofence", map[string]any{"event": "geofence_entry", "headline": "x"}, true},
		{"plain", map[string]any{"headline": "x"}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := Normalize(tt.payload, SourceReceived)
			require.NotNil(t, e)
			assert.Equal(t, tt.want, e.IsGeofenceRelated)
		})
	}
}

// The fallback flag is a pure conjunction of transport and geofence
// relation; all four combinations.
func TestRemoteGeofenceFallbackMatrix(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		source   string
		payload  map[string]any
		remote   bool
		geofence bool
	}{
		{"remote geofence", SourceReceived, map[string]any{"activation": "ON_ENTER"}, true, true},
		{"remote plain", SourceReceived, map[string]any{"headline": "x"}, true, false},
		{"local geofence", SourceLocal, map[string]any{"activation": "ON_ENTER"}, false, true},
		{"local plain", SourceLocal, map[string]any{"headline": "x"}, false, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := Normalize(tt.payload, tt.source)
			require.NotNil(t, e)
			assert.Equal(t, tt.remote, e.Transport == TransportRemote)
			assert.Equal(t, tt.geofence, e.IsGeofenceRelated)
			assert.Equal(t, tt.remote && tt.geofence, e.IsRemoteGeofenceFallback)
		})
	}
}

func TestRawRoundTrip(t *testing.T) {
	t.Parallel()
	payload := map[string]any{
		"headline": "H",
		"body":     "B",
		"custom":   "kept",
		"nested":   map[string]any{"a": float64(1)},
		"list":     []any{"x", "y"},
	}

	e := Normalize(payload, SourceOpened)
	require.NotNil(t, e)

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(e.Raw), &raw))

	// Every source key survives, plus the injected ingress source.
	for k, v := range payload {
		assert.Equal(t, v, raw[k], "key %q", k)
	}
	assert.Equal(t, SourceOpened, raw["source"])
	assert.Equal(t, []any{"x", "y"}, raw["list"])
}

func TestRawIsStableAcrossEmissions(t *testing.T) {
	t.Parallel()
	payload := map[string]any{"headline": "H", "body": "B", "zz": "1", "aa": "2"}
	first := Normalize(payload, SourceReceived)
	second := Normalize(payload, SourceReceived)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.Raw, second.Raw)
}

func TestIngressSourceWinsOverPayloadSource(t *testing.T) {
	t.Parallel()
	e := Normalize(map[string]any{"headline": "x", "source": "local"}, SourceReceived)
	require.NotNil(t, e)
	assert.Equal(t, SourceReceived, e.Source)
	assert.Equal(t, TransportRemote, e.Transport)
}

func TestNoiseIsDropped(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"empty payload", map[string]any{}},
		{"unrelated keys", map[string]any{"volume": float64(3), "screen": "on"}},
		{"empty strings only", map[string]any{"headline": "", "body": ""}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Nil(t, Normalize(tt.payload, SourceReceived))
		})
	}
}

func TestNormalizeJSON(t *testing.T) {
	t.Parallel()

	e := NormalizeJSON([]byte(`{"headline":"from json"}`), SourceLocal)
	require.NotNil(t, e)
	assert.Equal(t, strp("from json"), e.Headline)
	assert.Equal(t, TransportLocal, e.Transport)

	assert.Nil(t, NormalizeJSON([]byte(`not json`), SourceLocal))
	assert.Nil(t, NormalizeJSON([]byte(`[1,2,3]`), SourceLocal))
}
