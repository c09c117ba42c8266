// Package sdk models the vendor geofencing SDK boundary as an injected
// collaborator. The real SDK is closed-source and out of scope; the bridge
// only depends on this interface. Optional capabilities are declared as
// methods that a client may answer with ErrUnsupported instead of runtime
// introspection.
package sdk

import (
	"context"
	"errors"
	"strings"
	"time"

	"bubblbridge/internal/geo"
)

// ErrUnsupported is returned by optional capabilities the vendor build does
// not expose. Callers branch on it; it is never a failure by itself.
var ErrUnsupported = errors.New("sdk: operation unsupported")

// Environment selects which vendor backend the runtime binds to.
type Environment string

const (
	EnvStaging     Environment = "STAGING"
	EnvProduction  Environment = "PRODUCTION"
	EnvDevelopment Environment = "DEVELOPMENT"
)

// ParseEnvironment parses a caller-supplied environment name. Unparseable
// input defaults to STAGING.
func ParseEnvironment(s string) Environment {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(EnvProduction):
		return EnvProduction
	case string(EnvDevelopment):
		return EnvDevelopment
	default:
		return EnvStaging
	}
}

// Config is the runtime configuration handed to Start/Reinitialize.
type Config struct {
	APIKey           string
	Environment      Environment
	SegmentationTags []string

	// GeoPollInterval overrides the vendor polygon poll cadence; zero keeps
	// the vendor default.
	GeoPollInterval time.Duration

	// DefaultDistance is a platform-specific tuning knob, ignored where
	// unsupported.
	DefaultDistance int
}

// AuthResult is published on the authentication stream after Start. A nil
// Err means the runtime authenticated and geofence operations may proceed.
type AuthResult struct {
	DeviceID string
	BubblID  string
	Err      error
}

// AuthStatus mirrors the platform location authorization states.
type AuthStatus string

const (
	AuthNotDetermined AuthStatus = "notDetermined"
	AuthWhenInUse     AuthStatus = "authorizedWhenInUse"
	AuthAlways        AuthStatus = "authorizedAlways"
	AuthDenied        AuthStatus = "denied"
	AuthRestricted    AuthStatus = "restricted"
)

// RuntimeConfiguration is the vendor-side campaign configuration snapshot.
type RuntimeConfiguration struct {
	NotificationsCount int    `json:"notificationsCount"`
	DaysCount          int    `json:"daysCount"`
	BatteryCount       int    `json:"batteryCount"`
	PrivacyText        string `json:"privacyText"`
}

// SurveyAnswer is one answered survey question.
type SurveyAnswer struct {
	QuestionID int               `json:"question_id"`
	Type       string            `json:"type"`
	Value      string            `json:"value"`
	Choice     []ChoiceSelection `json:"choice,omitempty"`
}

type ChoiceSelection struct {
	ChoiceID int `json:"choice_id"`
}

// NotificationType classifies a reported activity's subject.
type NotificationType string

const (
	TypeNotification NotificationType = "notification"
	TypeLocation     NotificationType = "location"
	TypeGeofence     NotificationType = "geofence"
)

// ActivityType names a reportable engagement activity.
type ActivityType string

const (
	ActivityCTAEngagement         ActivityType = "cta_engagement"
	ActivityNotificationSent      ActivityType = "notification_sent"
	ActivityNotificationDelivered ActivityType = "notification_delivered"
	ActivityMediaViewed           ActivityType = "media_viewed"
	ActivityLocationUpdate        ActivityType = "location_update"
	ActivityGeofenceEntry         ActivityType = "geofence_entry"
	ActivityGeofenceExit          ActivityType = "geofence_exit"
)

// Activity is a structured engagement report.
type Activity struct {
	NotificationID int
	LocationID     int
	Type           NotificationType
	Activity       ActivityType
}

// Client is the vendor SDK surface the bridge drives. Blocking operations
// take a context; streams stay open for the client's lifetime and close on
// Close.
//
// Optional capabilities (a client may return ErrUnsupported):
//   - Reinitialize: in-place tenant reconfiguration. Unsupported means the
//     runtime captured immutable state and a tenant change needs a process
//     restart.
//   - RefetchGeofenceAt: coordinate-directed refetch.
//   - ConfigurePolling: polygon poll cadence override.
//   - ClearCachedCampaigns: vendor-side geofence cache clearing.
type Client interface {
	Start(ctx context.Context, cfg Config) error
	Reinitialize(ctx context.Context, cfg Config) error

	RefetchGeofence(ctx context.Context) error
	RefetchGeofenceAt(ctx context.Context, lat, lng float64) error
	ConfigurePolling(ctx context.Context, foreground, background time.Duration) error
	ForceRefreshCampaigns(ctx context.Context) error
	ClearCachedCampaigns(ctx context.Context) error
	HasCampaigns(ctx context.Context) (bool, error)
	CampaignCount(ctx context.Context) (int, error)

	UpdateSegments(ctx context.Context, tags []string) error
	SetCorrelationID(ctx context.Context, id string) error
	CorrelationID(ctx context.Context) (string, error)
	ClearCorrelationID(ctx context.Context) error

	PrivacyText(ctx context.Context) (string, error)
	RefreshPrivacyText(ctx context.Context) (string, error)
	CurrentConfiguration(ctx context.Context) (*RuntimeConfiguration, error)

	TrackSurveyEvent(ctx context.Context, notificationID, locationID, activity string) (bool, error)
	SubmitSurveyResponse(ctx context.Context, notificationID, locationID string, answers []SurveyAnswer) (bool, error)
	ReportNotification(ctx context.Context, a Activity) error

	RequestLocationAuthorization(ctx context.Context) error

	AuthEvents() <-chan AuthResult
	PolygonUpdates() <-chan []geo.Polygon
	LocationAuthEvents() <-chan AuthStatus

	Close() error
}
