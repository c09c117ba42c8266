// Package bridge is the application-facing facade: it drives the vendor SDK
// client, normalizes inbound payloads, fans events out on the bus, and owns
// the tenant lifecycle plus the device-log streamer.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"bubblbridge/internal/devicelog"
	"bubblbridge/internal/eventbus"
	"bubblbridge/internal/geo"
	"bubblbridge/internal/normalize"
	"bubblbridge/internal/sdk"
	"bubblbridge/internal/tenant"
	"bubblbridge/pkg/logx"
)

// defaultLocationAuthTimeout bounds how long StartLocationTracking waits for
// the authorization decision before giving up.
const defaultLocationAuthTimeout = 8 * time.Second

// Options wires a Bridge. Client, Bus and Manager are required.
type Options struct {
	Client  sdk.Client
	Bus     eventbus.Bus
	Manager *tenant.Manager

	Identity devicelog.Identity

	// LogPath resolves the file the device-log streamer tails; usually the
	// logging service's active file sink.
	LogPath devicelog.PathFunc

	// SpoolDir is where TestNotification drops its payload file. Empty
	// disables the file drop.
	SpoolDir string

	LocationAuthTimeout time.Duration

	// DeviceLogIntervalMs and DeviceLogMaxLines are applied when a stream
	// start request leaves them unset. Zero keeps the package defaults.
	DeviceLogIntervalMs int64
	DeviceLogMaxLines   int

	Log logx.Logger
}

type coords struct {
	lat, lng float64
}

// Bridge is safe for concurrent use. All mutable state is guarded by mu;
// vendor calls happen outside the lock.
type Bridge struct {
	client   sdk.Client
	bus      eventbus.Bus
	manager  *tenant.Manager
	streamer *devicelog.Streamer
	identity devicelog.Identity
	spoolDir string
	log      logx.Logger

	locationAuthTimeout time.Duration
	devLogIntervalMs    int64
	devLogMaxLines      int

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.Mutex
	geofenceUpdates bool
	pendingRefresh  bool
	pendingCoords   *coords // latest requested coordinates win
	lastLocAuth     sdk.AuthStatus
	locWait         chan sdk.AuthStatus
	closed          bool
}

// New builds the bridge and starts its event pumps. Callers own Close.
func New(opts Options) (*Bridge, error) {
	if opts.Client == nil || opts.Bus == nil || opts.Manager == nil {
		return nil, errors.New("bridge: client, bus and manager are required")
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}

	b := &Bridge{
		client:              opts.Client,
		bus:                 opts.Bus,
		manager:             opts.Manager,
		identity:            opts.Identity,
		spoolDir:            opts.SpoolDir,
		log:                 log,
		locationAuthTimeout: opts.LocationAuthTimeout,
		devLogIntervalMs:    opts.DeviceLogIntervalMs,
		devLogMaxLines:      opts.DeviceLogMaxLines,
		lastLocAuth:         sdk.AuthNotDetermined,
	}
	if b.locationAuthTimeout <= 0 {
		b.locationAuthTimeout = defaultLocationAuthTimeout
	}

	pathFn := opts.LogPath
	if pathFn == nil {
		pathFn = func() string { return "" }
	}
	b.streamer = devicelog.New(b.identity, pathFn, func(snap devicelog.Snapshot) {
		b.bus.Publish(eventbus.Event{Channel: eventbus.ChannelDeviceLog, Data: snap})
	}, log.With(logx.String("component", "devicelog")))

	// A tenant change tears down the live geofence subscription and any
	// queued refresh before the runtime is reconfigured.
	b.manager.SetTeardown(func() {
		b.mu.Lock()
		b.geofenceUpdates = false
		b.pendingRefresh = false
		b.pendingCoords = nil
		b.mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.wg.Add(1)
	go b.run(ctx)
	return b, nil
}

// run pumps the three vendor streams until Close.
func (b *Bridge) run(ctx context.Context) {
	defer b.wg.Done()

	auth := b.client.AuthEvents()
	polys := b.client.PolygonUpdates()
	locAuth := b.client.LocationAuthEvents()

	for auth != nil || polys != nil || locAuth != nil {
		select {
		case <-ctx.Done():
			return

		case res, ok := <-auth:
			if !ok {
				auth = nil
				continue
			}
			b.onAuthResult(ctx, res)

		case ps, ok := <-polys:
			if !ok {
				polys = nil
				continue
			}
			b.onPolygons(ps)

		case st, ok := <-locAuth:
			if !ok {
				locAuth = nil
				continue
			}
			b.onLocationAuth(st)
		}
	}
}

func (b *Bridge) onAuthResult(ctx context.Context, res sdk.AuthResult) {
	if res.Err != nil {
		b.manager.SetAuthenticated(false)
		b.log.Error("vendor authentication failed", logx.Err(res.Err))
		return
	}
	b.manager.SetAuthenticated(true)
	b.log.Info("vendor authenticated",
		logx.String("device_id", res.DeviceID),
		logx.String("bubbl_id", res.BubblID))

	b.mu.Lock()
	pending := b.pendingRefresh
	c := b.pendingCoords
	b.pendingRefresh = false
	b.pendingCoords = nil
	b.mu.Unlock()
	if pending {
		b.triggerRefresh(ctx, "postAuthenticationPendingRefresh", c)
	}
}

func (b *Bridge) onPolygons(polygons []geo.Polygon) {
	b.mu.Lock()
	enabled := b.geofenceUpdates
	b.mu.Unlock()
	if !enabled {
		return
	}
	snap := geo.Project(polygons)
	b.log.Debug("publishing geofence snapshot",
		logx.Int("polygons", snap.Stats.PolygonsTotal),
		logx.Int("circles", len(snap.Circles)))
	b.bus.Publish(eventbus.Event{Channel: eventbus.ChannelGeofence, Data: snap})
}

func (b *Bridge) onLocationAuth(st sdk.AuthStatus) {
	b.mu.Lock()
	b.lastLocAuth = st
	wait := b.locWait
	b.mu.Unlock()
	if wait != nil {
		select {
		case wait <- st:
		default:
		}
	}
}

// triggerRefresh asks the vendor for fresh geofence data. Before the session
// is initialized and authenticated the request is queued instead; the queue
// holds one slot and the latest explicit coordinates win. The queued request
// replays on authentication success.
func (b *Bridge) triggerRefresh(ctx context.Context, reason string, c *coords) {
	// Session state is read before mu: the manager invokes the teardown
	// hook (which takes mu) while holding its own lock, so the bridge must
	// never hold mu across a manager call. A boot that lands between this
	// read and the lock below either clears the queued slot via teardown
	// or absorbs a refetch against the fresh runtime; both are harmless.
	ready := b.manager.Initialized() && b.manager.Authenticated()

	b.mu.Lock()
	if !ready {
		b.pendingRefresh = true
		if c != nil {
			b.pendingCoords = c
		}
		b.mu.Unlock()
		b.log.Debug("queued geofence refresh", logx.String("reason", reason))
		return
	}
	b.pendingCoords = nil
	b.mu.Unlock()

	if c != nil {
		err := b.client.RefetchGeofenceAt(ctx, c.lat, c.lng)
		if err == nil {
			return
		}
		if !errors.Is(err, sdk.ErrUnsupported) {
			b.log.Warn("coordinate geofence refetch failed",
				logx.String("reason", reason), logx.Err(err))
			return
		}
		// No coordinate support; fall back to the plain refetch.
	}
	if err := b.client.RefetchGeofence(ctx); err != nil {
		b.log.Warn("geofence refetch failed", logx.String("reason", reason), logx.Err(err))
	}
}

// HandleInbound feeds one externally delivered payload through the
// normalizer and onto the bus. Malformed input is dropped, never an error:
// inbound payloads are untrusted and a dropped notification beats a dead
// bridge.
func (b *Bridge) HandleInbound(payload []byte, source string) {
	ev := normalize.NormalizeJSON(payload, source)
	if ev == nil {
		b.log.Debug("dropping unrecognized inbound payload",
			logx.String("source", source), logx.Int("bytes", len(payload)))
		return
	}
	b.bus.Publish(eventbus.Event{Channel: eventbus.ChannelNotification, Data: ev})
	if ev.IsGeofenceRelated {
		b.triggerRefresh(context.Background(), "inboundNotification", nil)
	}
}

// LogLine is the payload published on the bridge-log channel: one rendered
// daemon log line at or above the forwarding threshold.
type LogLine struct {
	Level string `json:"level"`
	Line  string `json:"line"`
}

// PublishLogLine mirrors a daemon log line onto the bridge-log channel. It
// is installed as the logging service's forward sink, so it must not log.
func (b *Bridge) PublishLogLine(level logx.Level, line string) {
	b.bus.Publish(eventbus.Event{
		Channel: eventbus.ChannelBridgeLog,
		Data:    LogLine{Level: level.String(), Line: line},
	})
}

// Subscribe attaches an application listener to one of the public channels.
func (b *Bridge) Subscribe(channel string, buffer int) (<-chan eventbus.Event, func(), error) {
	switch channel {
	case eventbus.ChannelNotification, eventbus.ChannelGeofence,
		eventbus.ChannelDeviceLog, eventbus.ChannelBridgeLog:
	default:
		return nil, nil, errf(CodeInvalidArgument, "unknown channel "+channel)
	}
	ch, unsub := b.bus.Subscribe(channel, buffer)
	return ch, unsub, nil
}

// requireInitialized is the shared gate. It never touches the vendor client.
func (b *Bridge) requireInitialized() error {
	if !b.manager.Initialized() {
		return errNotInitialized()
	}
	return nil
}

// Bootstrap auto-initializes from the stored tenant, once per process. The
// daemon calls it before serving anything.
func (b *Bridge) Bootstrap(ctx context.Context) error {
	if err := b.manager.Bootstrap(ctx); err != nil {
		return wrapf(CodeBootFailed, "bootstrap from stored tenant failed", err)
	}
	return nil
}

// Init is the legacy single-argument entry point: environment comes from
// options and defaults to staging.
func (b *Bridge) Init(ctx context.Context, apiKey, environment string, opts tenant.BootOptions) (tenant.Result, error) {
	return b.Boot(ctx, apiKey, environment, opts)
}

// Boot resolves the tenant lifecycle decision for this call. Authentication
// outcome arrives later on the vendor auth stream, never through Boot.
func (b *Bridge) Boot(ctx context.Context, apiKey, environment string, opts tenant.BootOptions) (tenant.Result, error) {
	res, err := b.manager.Boot(ctx, apiKey, environment, opts)
	if err != nil {
		var perr *tenant.PersistError
		switch {
		case errors.Is(err, tenant.ErrInvalidAPIKey):
			return tenant.Result{}, wrapf(CodeInvalidArgument, "apiKey must be a non-empty string", err)
		case errors.As(err, &perr):
			return tenant.Result{}, wrapf(CodePersistFailed, "tenant config could not be persisted", err)
		default:
			return tenant.Result{}, wrapf(CodeBootFailed, "vendor initialization failed", err)
		}
	}
	if res.RestartingForTenantChange {
		b.log.Warn("tenant changed; process restart pending")
	}
	return res, nil
}

// Close tears the bridge down: pumps, streamer, vendor client, bus. Safe to
// call more than once.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.streamer.Stop()
	err := b.client.Close()
	b.wg.Wait()
	b.bus.Close()
	return err
}
