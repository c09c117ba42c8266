// Package normalize converts loosely-typed native notification payloads
// into the canonical event shape. Inbound payloads are untrusted: malformed
// input degrades to a partial event, or to no event at all, never to an
// error.
package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Wrapper keys checked, in priority order, for a nested payload object or a
// JSON-object-encoded string.
var wrapperKeys = []string{"payload", "notification_payload", "data"}

// Alias tables: for each canonical field, the acceptable source key names in
// resolution order. The first alias present with a non-empty value wins.
var (
	idAliases = []string{
		"id", "n_id", "notification_id", "notificationId",
		"curatedNotificationID", "curatedNotificationId", "curated_notification_id",
	}
	headlineAliases   = []string{"headline", "title", "notificationTitle"}
	bodyAliases       = []string{"body", "message", "notificationBody"}
	mediaURLAliases   = []string{"mediaUrl", "mediaURL", "media_url"}
	mediaTypeAliases  = []string{"mediaType", "media_type"}
	activationAliases = []string{
		"activation", "geofence_activation", "geofenceActivation",
		"trigger", "eventType", "event_type",
	}
	ctaLabelAliases   = []string{"ctaLabel", "cta_label"}
	ctaURLAliases     = []string{"ctaUrl", "cta_url"}
	locationIDAliases = []string{"locationId", "location_id", "locationID", "location_id_str"}
	campaignIDAliases = []string{"campaignId", "campaign_id", "geofenceId", "geofence_id"}
	postMsgAliases    = []string{"postMessage", "post_message", "completion_message", "completionMessage"}
	sourceAliases     = []string{"source", "eventSource", "notification_source"}
	triggerAliases    = []string{"trigger", "eventType", "event_type", "event"}
)

// NormalizeJSON decodes data as a JSON object and normalizes it.
// Non-object input yields no event.
func NormalizeJSON(data []byte, source string) *Event {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	return Normalize(payload, source)
}

// Normalize maps an arbitrary key/value payload from the given ingress
// source onto the canonical event. It returns nil when nothing useful could
// be extracted, which guards against firing empty events on unrelated
// broadcast noise.
func Normalize(raw map[string]any, source string) *Event {
	if raw == nil {
		return nil
	}

	payload := unwrapPayload(raw)
	payload["source"] = source

	out := &Event{}
	resolved := false

	if id, ok := firstInt(payload, idAliases); ok {
		out.ID = &id
		resolved = true
	}
	if v, ok := firstString(payload, headlineAliases); ok {
		out.Headline = &v
		resolved = true
	}
	if v, ok := firstString(payload, bodyAliases); ok {
		out.Body = &v
		resolved = true
	}
	if v, ok := firstString(payload, mediaURLAliases); ok {
		out.MediaURL = &v
		resolved = true
	}
	if v, ok := firstString(payload, mediaTypeAliases); ok {
		out.MediaType = &v
		resolved = true
	}
	if v, ok := firstString(payload, activationAliases); ok {
		out.Activation = &v
		resolved = true
	}
	if v, ok := firstString(payload, ctaLabelAliases); ok {
		out.CTALabel = &v
		resolved = true
	}
	if v, ok := firstString(payload, ctaURLAliases); ok {
		out.CTAURL = &v
		resolved = true
	}
	if v, ok := firstString(payload, locationIDAliases); ok {
		out.LocationID = &v
		resolved = true
	}
	if v, ok := firstString(payload, campaignIDAliases); ok {
		out.CampaignID = &v
		resolved = true
	}
	if v, ok := firstString(payload, postMsgAliases); ok {
		out.PostMessage = &v
		resolved = true
	}

	if qs, ok := normalizeQuestions(payload["questions"]); ok {
		out.Questions = qs
		resolved = true
	}

	// Push-notification alert envelope fills headline/body only when no
	// more specific alias resolved them.
	if aps, ok := payload["aps"].(map[string]any); ok {
		if out.Headline == nil || out.Body == nil {
			switch alert := aps["alert"].(type) {
			case map[string]any:
				if out.Headline == nil {
					if title, ok := alert["title"].(string); ok && title != "" {
						out.Headline = &title
						resolved = true
					}
				}
				if out.Body == nil {
					if body, ok := alert["body"].(string); ok && body != "" {
						out.Body = &body
						resolved = true
					}
				}
			case string:
				if out.Headline == nil {
					headline := "Notification"
					out.Headline = &headline
				}
				if out.Body == nil && alert != "" {
					body := alert
					out.Body = &body
				}
				resolved = true
			}
		}
	}

	if v, ok := firstString(payload, sourceAliases); ok {
		out.Source = v
	}

	out.Transport = deriveTransport(out.Source, payload)
	out.IsGeofenceRelated = deriveGeofenceRelated(out.Activation, payload)
	out.IsRemoteGeofenceFallback = out.Transport == TransportRemote && out.IsGeofenceRelated

	if !resolved {
		return nil
	}

	out.Raw = serializeRaw(payload)
	return out
}

// unwrapPayload unwraps one level of wrapper key, accepting either an
// already-nested object or a JSON-object-encoded string. A string that
// fails to parse is left in place and the top-level structure is used as
// the payload directly.
func unwrapPayload(raw map[string]any) map[string]any {
	for _, key := range wrapperKeys {
		value, ok := raw[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case map[string]any:
			return cloneMap(v)
		case string:
			var nested map[string]any
			if err := json.Unmarshal([]byte(v), &nested); err == nil {
				return nested
			}
			// Malformed: keep the opaque string in the top-level payload.
		}
	}
	return cloneMap(raw)
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func deriveTransport(source string, payload map[string]any) string {
	switch strings.ToLower(source) {
	case "received", "opened", "remote", "apns", "fcm", "push":
		return TransportRemote
	case "local", "sdk":
		return TransportLocal
	}
	if _, ok := payload["aps"]; ok {
		return TransportRemote
	}
	return TransportUnknown
}

func deriveGeofenceRelated(activation *string, payload map[string]any) bool {
	if activation != nil {
		switch strings.ToUpper(*activation) {
		case "ON_ENTER", "ON_EXIT":
			return true
		}
	}
	for _, key := range campaignIDAliases {
		if v, ok := payload[key]; ok && v != nil {
			return true
		}
	}
	if v, ok := firstString(payload, triggerAliases); ok {
		if strings.Contains(strings.ToLower(v), "geofence") {
			return true
		}
	}
	return false
}

// firstString resolves the first alias whose value is a non-empty string.
// Numeric values are accepted and coerced to their string representation.
func firstString(payload map[string]any, aliases []string) (string, bool) {
	for _, key := range aliases {
		value, ok := payload[key]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			if v != "" {
				return v, true
			}
		case float64:
			return formatNumber(v), true
		case int:
			return strconv.Itoa(v), true
		case int64:
			return strconv.FormatInt(v, 10), true
		case json.Number:
			return v.String(), true
		}
	}
	return "", false
}

// firstInt resolves the first alias carrying an integer, accepting numeric
// strings as well.
func firstInt(payload map[string]any, aliases []string) (int64, bool) {
	for _, key := range aliases {
		value, ok := payload[key]
		if !ok || value == nil {
			continue
		}
		if n, ok := coerceInt(value); ok {
			return n, true
		}
	}
	return 0, false
}

func coerceInt(value any) (int64, bool) {
	switch v := value.(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// serializeRaw renders the canonical JSON of the working payload. Keys sort
// lexicographically (encoding/json map order), which makes the escape hatch
// byte-stable across emissions of the same payload.
func serializeRaw(payload map[string]any) string {
	b, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(b)
}
