package normalize

// Event is the canonical notification record delivered to listeners.
// Nullable fields are pointers so the wire shape distinguishes "absent"
// from "empty". Transport, IsGeofenceRelated and IsRemoteGeofenceFallback
// are derived by Normalize and never set independently.
type Event struct {
	ID          *int64  `json:"id,omitempty"`
	Headline    *string `json:"headline"`
	Body        *string `json:"body"`
	MediaURL    *string `json:"mediaUrl"`
	MediaType   *string `json:"mediaType"`
	Activation  *string `json:"activation"`
	CTALabel    *string `json:"ctaLabel"`
	CTAURL      *string `json:"ctaUrl"`
	LocationID  *string `json:"locationId"`
	CampaignID  *string `json:"campaignId,omitempty"`
	PostMessage *string `json:"postMessage"`

	Source                   string `json:"source"`
	Transport                string `json:"transport"`
	IsGeofenceRelated        bool   `json:"isGeofenceRelated"`
	IsRemoteGeofenceFallback bool   `json:"isRemoteGeofenceFallback"`

	// Questions is nil for an explicit null; a survey with no questions is
	// an empty slice.
	Questions []SurveyQuestion `json:"questions"`

	// Raw is the canonical JSON re-serialization of the unwrapped inbound
	// payload (pre-extraction), kept as an escape hatch for consumers.
	Raw string `json:"raw"`
}

// Transport values.
const (
	TransportRemote  = "remote"
	TransportLocal   = "local"
	TransportUnknown = "unknown"
)

// Ingress source values used by the bridge.
const (
	SourceReceived = "received"
	SourceOpened   = "opened"
	SourceLocal    = "local"
	SourceSDK      = "sdk"
)

type SurveyQuestion struct {
	ID           int64          `json:"id"`
	Question     string         `json:"question"`
	QuestionType *string        `json:"question_type"`
	HasChoices   bool           `json:"has_choices"`
	Position     int            `json:"position"`
	Choices      []SurveyChoice `json:"choices"`
}

type SurveyChoice struct {
	ID       int64  `json:"id"`
	Choice   string `json:"choice"`
	Position int    `json:"position"`
}
