// Package sim is a deterministic in-process stand-in for the vendor runtime.
// It authenticates shortly after Start, serves fixture polygons, and keeps
// the same stream contract as a real client. The daemon runs against it when
// no vendor binding is linked in; tests use it directly.
package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"bubblbridge/internal/geo"
	"bubblbridge/internal/sdk"
	"bubblbridge/pkg/logx"
)

// Options tunes simulator behavior. The zero value is usable.
type Options struct {
	// AuthDelay is how long after Start the auth event fires. Zero means a
	// short default; negative means authenticate synchronously inside Start.
	AuthDelay time.Duration

	// Polygons are served on every geofence refetch. Nil serves a small
	// built-in fixture set.
	Polygons []geo.Polygon

	PrivacyText string

	Log logx.Logger
}

const defaultAuthDelay = 50 * time.Millisecond

var defaultPolygons = []geo.Polygon{
	{ID: 101, Name: "riverside", Vertices: []geo.Vertex{
		{Latitude: 51.5055, Longitude: -0.0754},
		{Latitude: 51.5061, Longitude: -0.0712},
		{Latitude: 51.5032, Longitude: -0.0718},
	}},
	{ID: 102, Name: "market-square", Vertices: []geo.Vertex{
		{Latitude: 52.2297, Longitude: 21.0122},
		{Latitude: 52.2301, Longitude: 21.0165},
		{Latitude: 52.2278, Longitude: 21.0158},
		{Latitude: 52.2274, Longitude: 21.0119},
	}},
}

// Client simulates the vendor SDK. It supports in-place reinitialization and
// coordinate-directed refetch but leaves polling configuration and campaign
// cache clearing unsupported, which exercises both capability paths upstream.
type Client struct {
	sdk.Unsupported

	log       logx.Logger
	authDelay time.Duration
	polygons  []geo.Polygon

	auth    chan sdk.AuthResult
	polys   chan []geo.Polygon
	locAuth chan sdk.AuthStatus

	mu            sync.Mutex
	started       bool
	closed        bool
	cfg           sdk.Config
	deviceID      string
	bubblID       string
	correlationID string
	privacyText   string
	authTimer     *time.Timer
}

var errClosed = errors.New("sim: client closed")
var errNotStarted = errors.New("sim: not started")

// New builds a simulator client. Streams are buffered so the simulator never
// blocks on a slow consumer.
func New(opts Options) *Client {
	c := &Client{
		log:         opts.Log,
		authDelay:   opts.AuthDelay,
		polygons:    opts.Polygons,
		privacyText: opts.PrivacyText,
		auth:        make(chan sdk.AuthResult, 4),
		polys:       make(chan []geo.Polygon, 4),
		locAuth:     make(chan sdk.AuthStatus, 4),
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	if c.authDelay == 0 {
		c.authDelay = defaultAuthDelay
	}
	if c.polygons == nil {
		c.polygons = defaultPolygons
	}
	if c.privacyText == "" {
		c.privacyText = "Location data is processed for campaign targeting only."
	}
	return c
}

func (c *Client) Start(ctx context.Context, cfg sdk.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	if c.started {
		return errors.New("sim: already started")
	}
	c.cfg = cfg
	c.started = true
	c.deviceID = uuid.NewString()
	c.bubblID = uuid.NewString()
	c.log.Info("sim runtime starting",
		logx.String("environment", string(cfg.Environment)),
		logx.Int("segments", len(cfg.SegmentationTags)))
	c.scheduleAuthLocked()
	return nil
}

// Reinitialize tears down the authenticated session and starts over with the
// new tenant, keeping the process alive.
func (c *Client) Reinitialize(ctx context.Context, cfg sdk.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	if c.authTimer != nil {
		c.authTimer.Stop()
	}
	c.cfg = cfg
	c.started = true
	c.deviceID = uuid.NewString()
	c.bubblID = uuid.NewString()
	c.correlationID = ""
	c.log.Info("sim runtime reinitializing", logx.String("environment", string(cfg.Environment)))
	c.scheduleAuthLocked()
	return nil
}

// scheduleAuthLocked emits the auth result after the configured delay. A
// negative delay authenticates inline, which keeps tests deterministic.
func (c *Client) scheduleAuthLocked() {
	res := sdk.AuthResult{DeviceID: c.deviceID, BubblID: c.bubblID}
	if c.authDelay < 0 {
		send(c.auth, res)
		return
	}
	c.authTimer = time.AfterFunc(c.authDelay, func() {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			send(c.auth, res)
		}
	})
}

// send drops instead of blocking when the buffer is full.
func send[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func (c *Client) RefetchGeofence(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return errNotStarted
	}
	c.log.Debug("sim serving polygons", logx.Int("count", len(c.polygons)))
	send(c.polys, c.polygons)
	return nil
}

// RefetchGeofenceAt ignores the coordinate and serves the same fixtures; the
// simulator has no spatial index.
func (c *Client) RefetchGeofenceAt(ctx context.Context, lat, lng float64) error {
	return c.RefetchGeofence(ctx)
}

func (c *Client) ForceRefreshCampaigns(ctx context.Context) error {
	return c.RefetchGeofence(ctx)
}

func (c *Client) HasCampaigns(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && len(c.polygons) > 0, nil
}

func (c *Client) CampaignCount(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return 0, nil
	}
	return len(c.polygons), nil
}

func (c *Client) UpdateSegments(ctx context.Context, tags []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return errNotStarted
	}
	c.cfg.SegmentationTags = append([]string(nil), tags...)
	return nil
}

func (c *Client) SetCorrelationID(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.correlationID = id
	return nil
}

func (c *Client) CorrelationID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.correlationID, nil
}

func (c *Client) ClearCorrelationID(ctx context.Context) error {
	return c.SetCorrelationID(ctx, "")
}

func (c *Client) PrivacyText(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.privacyText, nil
}

func (c *Client) RefreshPrivacyText(ctx context.Context) (string, error) {
	return c.PrivacyText(ctx)
}

func (c *Client) CurrentConfiguration(ctx context.Context) (*sdk.RuntimeConfiguration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil, errNotStarted
	}
	return &sdk.RuntimeConfiguration{
		NotificationsCount: len(c.polygons),
		DaysCount:          7,
		BatteryCount:       20,
		PrivacyText:        c.privacyText,
	}, nil
}

func (c *Client) TrackSurveyEvent(ctx context.Context, notificationID, locationID, activity string) (bool, error) {
	c.log.Debug("sim survey event",
		logx.String("notification_id", notificationID),
		logx.String("activity", activity))
	return true, nil
}

func (c *Client) SubmitSurveyResponse(ctx context.Context, notificationID, locationID string, answers []sdk.SurveyAnswer) (bool, error) {
	c.log.Debug("sim survey response",
		logx.String("notification_id", notificationID),
		logx.Int("answers", len(answers)))
	return true, nil
}

func (c *Client) ReportNotification(ctx context.Context, a sdk.Activity) error {
	c.log.Debug("sim activity report",
		logx.Int("notification_id", a.NotificationID),
		logx.String("activity", string(a.Activity)))
	return nil
}

// RequestLocationAuthorization always grants. The grant is emitted on the
// stream so the auth-race handling upstream sees a realistic sequence.
func (c *Client) RequestLocationAuthorization(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	send(c.locAuth, sdk.AuthAlways)
	return nil
}

func (c *Client) AuthEvents() <-chan sdk.AuthResult         { return c.auth }
func (c *Client) PolygonUpdates() <-chan []geo.Polygon      { return c.polys }
func (c *Client) LocationAuthEvents() <-chan sdk.AuthStatus { return c.locAuth }

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.started = false
	if c.authTimer != nil {
		c.authTimer.Stop()
	}
	close(c.auth)
	close(c.polys)
	close(c.locAuth)
	return nil
}
