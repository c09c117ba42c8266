package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bubblbridge/internal/devicelog"
	"bubblbridge/internal/eventbus"
	"bubblbridge/internal/normalize"
	"bubblbridge/internal/sdk"
	"bubblbridge/internal/tenant"
	"bubblbridge/pkg/logx"
)

// RequiredPermissions lists the host permissions the bridge needs to do its
// job, in the order the application should request them.
func (b *Bridge) RequiredPermissions() []string {
	return []string{"location.fine", "location.coarse", "notifications.post"}
}

// LocationGranted reports whether the last observed authorization allows
// location work.
func (b *Bridge) LocationGranted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastLocAuth == sdk.AuthAlways || b.lastLocAuth == sdk.AuthWhenInUse
}

// NotificationGranted reports whether the bridge can deliver local
// notifications, which for the daemon means a usable spool directory.
func (b *Bridge) NotificationGranted() bool {
	if b.spoolDir == "" {
		return false
	}
	info, err := os.Stat(b.spoolDir)
	return err == nil && info.IsDir()
}

// RequestPushPermission makes the notification path usable, creating the
// spool directory when missing.
func (b *Bridge) RequestPushPermission() (bool, error) {
	if b.spoolDir == "" {
		return false, nil
	}
	if err := os.MkdirAll(b.spoolDir, 0o755); err != nil {
		return false, wrapf(CodePushPermissionFailed, "spool directory unavailable", err)
	}
	return true, nil
}

// StartLocationTracking requests always-on location authorization and waits
// for the decision, bounded by the auth timeout. An affirmative decision
// triggers a geofence refresh. The result reports whether background
// tracking is active; only an explicit vendor failure is an error.
func (b *Bridge) StartLocationTracking(ctx context.Context) (bool, error) {
	if err := b.requireInitialized(); err != nil {
		return false, err
	}

	b.mu.Lock()
	switch b.lastLocAuth {
	case sdk.AuthAlways:
		b.mu.Unlock()
		b.triggerRefresh(ctx, "startLocationTracking", nil)
		return true, nil
	case sdk.AuthDenied, sdk.AuthRestricted:
		b.mu.Unlock()
		b.log.Warn("location tracking denied; always authorization is required")
		return false, nil
	}
	// Replace any wait from a previous call; the newer caller wins.
	wait := make(chan sdk.AuthStatus, 1)
	b.locWait = wait
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if b.locWait == wait {
			b.locWait = nil
		}
		b.mu.Unlock()
	}()

	if err := b.client.RequestLocationAuthorization(ctx); err != nil {
		return false, wrapf(CodeStartLocationFailed, "location authorization request failed", err)
	}

	timeout := time.NewTimer(b.locationAuthTimeout)
	defer timeout.Stop()
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timeout.C:
			b.mu.Lock()
			granted := b.lastLocAuth == sdk.AuthAlways
			b.mu.Unlock()
			if granted {
				b.triggerRefresh(ctx, "startLocationTracking", nil)
				return true, nil
			}
			b.log.Warn("location authorization not granted before timeout")
			return false, nil
		case st := <-wait:
			switch st {
			case sdk.AuthAlways:
				b.triggerRefresh(ctx, "startLocationTracking", nil)
				return true, nil
			case sdk.AuthWhenInUse, sdk.AuthDenied, sdk.AuthRestricted:
				b.log.Warn("background tracking requires always authorization",
					logx.String("status", string(st)))
				return false, nil
			default:
				// Not determined yet; keep waiting.
			}
		}
	}
}

// RefreshGeofence asks for fresh geofence data around the given coordinates.
// Before authentication completes the request is queued and replayed.
func (b *Bridge) RefreshGeofence(ctx context.Context, lat, lng float64) error {
	if err := b.requireInitialized(); err != nil {
		return err
	}
	b.triggerRefresh(ctx, "refreshGeofence", &coords{lat: lat, lng: lng})
	return nil
}

// StartGeofenceUpdates enables geofence snapshot publishing. Starting twice
// is a no-op; there is never more than one live subscription.
func (b *Bridge) StartGeofenceUpdates(ctx context.Context) error {
	if err := b.requireInitialized(); err != nil {
		return err
	}
	b.mu.Lock()
	already := b.geofenceUpdates
	b.geofenceUpdates = true
	b.mu.Unlock()
	if already {
		return nil
	}
	// Prime the new subscriber with current data.
	b.triggerRefresh(ctx, "startGeofenceUpdates", nil)
	return nil
}

// StopGeofenceUpdates disables snapshot publishing. Idempotent.
func (b *Bridge) StopGeofenceUpdates() {
	b.mu.Lock()
	b.geofenceUpdates = false
	b.mu.Unlock()
}

func (b *Bridge) HasCampaigns(ctx context.Context) (bool, error) {
	if err := b.requireInitialized(); err != nil {
		return false, err
	}
	ok, err := b.client.HasCampaigns(ctx)
	if err != nil {
		return false, wrapf(CodeVendorFailed, "campaign lookup failed", err)
	}
	return ok, nil
}

func (b *Bridge) GetCampaignCount(ctx context.Context) (int, error) {
	if err := b.requireInitialized(); err != nil {
		return 0, err
	}
	n, err := b.client.CampaignCount(ctx)
	if err != nil {
		return 0, wrapf(CodeVendorFailed, "campaign count failed", err)
	}
	return n, nil
}

func (b *Bridge) ForceRefreshCampaigns(ctx context.Context) (bool, error) {
	if err := b.requireInitialized(); err != nil {
		return false, err
	}
	if err := b.client.ForceRefreshCampaigns(ctx); err != nil {
		return false, wrapf(CodeVendorFailed, "campaign refresh failed", err)
	}
	return true, nil
}

// ClearCachedCampaigns clears the vendor-side campaign cache where the
// vendor build exposes that; otherwise it reports false without error.
func (b *Bridge) ClearCachedCampaigns(ctx context.Context) (bool, error) {
	if err := b.requireInitialized(); err != nil {
		return false, err
	}
	err := b.client.ClearCachedCampaigns(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sdk.ErrUnsupported):
		b.log.Debug("campaign cache clearing unsupported by vendor build")
		return false, nil
	default:
		return false, wrapf(CodeVendorFailed, "campaign cache clear failed", err)
	}
}

func (b *Bridge) UpdateSegments(ctx context.Context, tags []string) (bool, error) {
	if err := b.requireInitialized(); err != nil {
		return false, err
	}
	if err := b.client.UpdateSegments(ctx, tags); err != nil {
		return false, wrapf(CodeSegmentsFailed, "segment update failed", err)
	}
	return true, nil
}

func (b *Bridge) SetCorrelationID(ctx context.Context, id string) error {
	if err := b.requireInitialized(); err != nil {
		return err
	}
	if err := b.client.SetCorrelationID(ctx, id); err != nil {
		return wrapf(CodeCorrelationIDFailed, "correlation id update failed", err)
	}
	return nil
}

func (b *Bridge) GetCorrelationID(ctx context.Context) (string, error) {
	if err := b.requireInitialized(); err != nil {
		return "", err
	}
	id, err := b.client.CorrelationID(ctx)
	if err != nil {
		return "", wrapf(CodeCorrelationIDFailed, "correlation id lookup failed", err)
	}
	return id, nil
}

func (b *Bridge) ClearCorrelationID(ctx context.Context) error {
	if err := b.requireInitialized(); err != nil {
		return err
	}
	if err := b.client.ClearCorrelationID(ctx); err != nil {
		return wrapf(CodeCorrelationIDFailed, "correlation id clear failed", err)
	}
	return nil
}

func (b *Bridge) GetCurrentConfiguration(ctx context.Context) (*sdk.RuntimeConfiguration, error) {
	if err := b.requireInitialized(); err != nil {
		return nil, err
	}
	cfg, err := b.client.CurrentConfiguration(ctx)
	if err != nil {
		return nil, wrapf(CodeGetConfigFailed, "configuration lookup failed", err)
	}
	return cfg, nil
}

func (b *Bridge) GetPrivacyText(ctx context.Context) (string, error) {
	if err := b.requireInitialized(); err != nil {
		return "", err
	}
	text, err := b.client.PrivacyText(ctx)
	if err != nil {
		return "", wrapf(CodePrivacyFailed, "privacy text lookup failed", err)
	}
	return text, nil
}

func (b *Bridge) RefreshPrivacyText(ctx context.Context) (string, error) {
	if err := b.requireInitialized(); err != nil {
		return "", err
	}
	text, err := b.client.RefreshPrivacyText(ctx)
	if err != nil {
		return "", wrapf(CodePrivacyFailed, "privacy text refresh failed", err)
	}
	return text, nil
}

// SendEvent reports an engagement. When every field parses into the
// structured activity shape it goes through the activity report; anything
// looser falls through to the survey event path so no engagement is lost.
func (b *Bridge) SendEvent(ctx context.Context, notificationID, locationID, eventType, activity string) (bool, error) {
	if err := b.requireInitialized(); err != nil {
		return false, err
	}

	nType, typeOK := parseNotificationType(eventType)
	aType, actOK := parseActivityType(activity)
	nID, nErr := strconv.Atoi(strings.TrimSpace(notificationID))
	lID, lErr := strconv.Atoi(strings.TrimSpace(locationID))

	if typeOK && actOK && nErr == nil && lErr == nil {
		if err := b.client.ReportNotification(ctx, sdk.Activity{
			NotificationID: nID,
			LocationID:     lID,
			Type:           nType,
			Activity:       aType,
		}); err != nil {
			return false, wrapf(CodeSendEventFailed, "activity report failed", err)
		}
		return true, nil
	}

	ok, err := b.client.TrackSurveyEvent(ctx, notificationID, locationID, activity)
	if err != nil {
		return false, wrapf(CodeSendEventFailed, "survey event fallback failed", err)
	}
	return ok, nil
}

// CTA records a call-to-action engagement, fire and forget. A non-numeric
// locationId falls back to the survey event path.
func (b *Bridge) CTA(ctx context.Context, notificationID int, locationID string) {
	if err := b.requireInitialized(); err != nil {
		b.log.Warn("cta dropped before boot", logx.Int("notification_id", notificationID))
		return
	}

	if lID, err := strconv.Atoi(strings.TrimSpace(locationID)); err == nil {
		if err := b.client.ReportNotification(ctx, sdk.Activity{
			NotificationID: notificationID,
			LocationID:     lID,
			Type:           sdk.TypeNotification,
			Activity:       sdk.ActivityCTAEngagement,
		}); err != nil {
			b.log.Warn("cta report failed", logx.Err(err))
		}
		return
	}

	if _, err := b.client.TrackSurveyEvent(ctx, strconv.Itoa(notificationID), locationID, string(sdk.ActivityCTAEngagement)); err != nil {
		b.log.Warn("cta survey fallback failed", logx.Err(err))
	}
}

func (b *Bridge) TrackSurveyEvent(ctx context.Context, notificationID, locationID, activity string) (bool, error) {
	if err := b.requireInitialized(); err != nil {
		return false, err
	}
	ok, err := b.client.TrackSurveyEvent(ctx, notificationID, locationID, activity)
	if err != nil {
		return false, wrapf(CodeSurveyEventFailed, "survey event failed", err)
	}
	return ok, nil
}

func (b *Bridge) SubmitSurveyResponse(ctx context.Context, notificationID, locationID string, answers []map[string]any) (bool, error) {
	if err := b.requireInitialized(); err != nil {
		return false, err
	}
	parsed := ParseSurveyAnswers(answers)
	ok, err := b.client.SubmitSurveyResponse(ctx, notificationID, locationID, parsed)
	if err != nil {
		return false, wrapf(CodeSurveySubmitFailed, "survey submission failed", err)
	}
	return ok, nil
}

// GetAPIKey returns the live session key, unmasked. Gated: before boot there
// is no session key to leak.
func (b *Bridge) GetAPIKey() (string, error) {
	active, ok := b.manager.Active()
	if !ok {
		return "", errNotInitialized()
	}
	return active.APIKey, nil
}

func (b *Bridge) SayHello() string { return "Hello from the Bubbl bridge" }

func (b *Bridge) GetDeviceLogStreamInfo() devicelog.Info { return b.streamer.Info() }

func (b *Bridge) GetDeviceLogTail(maxLines int) devicelog.Snapshot {
	return devicelog.Snapshot{
		DeviceType:     b.identity.Platform,
		DeviceID:       b.identity.ID,
		DeviceIDSuffix: b.identity.Suffix(),
		Timestamp:      time.Now().UnixMilli(),
		Lines:          b.streamer.Tail(maxLines),
	}
}

func (b *Bridge) StartDeviceLogStream(opts devicelog.StartOptions) devicelog.StartResult {
	if opts.IntervalMs == 0 {
		opts.IntervalMs = b.devLogIntervalMs
	}
	if opts.MaxLines == 0 {
		opts.MaxLines = b.devLogMaxLines
	}
	return b.streamer.Start(opts)
}

func (b *Bridge) StopDeviceLogStream() { b.streamer.Stop() }

// TestNotification emits a synthetic notification through the normal
// pipeline and drops the payload into the spool, standing in for the OS
// notification post. Deliberately ungated so it works before boot.
func (b *Bridge) TestNotification() (bool, error) {
	id := time.Now().Unix()
	payload := map[string]any{
		"id":          id,
		"headline":    "Test Notification",
		"body":        "This is a local test notification.",
		"locationId":  "test-location",
		"postMessage": "Thanks for testing!",
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return false, wrapf(CodeTestNotificationFailed, "payload encoding failed", err)
	}

	if ev := normalize.NormalizeJSON(data, normalize.SourceLocal); ev != nil {
		b.bus.Publish(eventbus.Event{Channel: eventbus.ChannelNotification, Data: ev})
	}

	if b.spoolDir != "" {
		name := fmt.Sprintf("bubbl_test_%d.json", id)
		if err := os.WriteFile(filepath.Join(b.spoolDir, name), data, 0o644); err != nil {
			return false, wrapf(CodeTestNotificationFailed, "spool write failed", err)
		}
	}
	return true, nil
}

// TenantInfo is the application-visible view of stored credentials. The key
// is always masked.
type TenantInfo struct {
	APIKeyMasked string `json:"apiKeyMasked"`
	Environment  string `json:"environment"`
}

// MaskAPIKey hides the bulk of a key: short keys disappear entirely, longer
// ones keep the first and last four characters.
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// GetTenantConfig returns the stored tenant, masked, or nil when none is
// stored.
func (b *Bridge) GetTenantConfig(ctx context.Context) (*TenantInfo, error) {
	cfg, err := b.manager.StoredTenant(ctx)
	if errors.Is(err, tenant.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapf(CodeTenantGetFailed, "stored tenant unreadable", err)
	}
	return &TenantInfo{
		APIKeyMasked: MaskAPIKey(cfg.APIKey),
		Environment:  string(cfg.Environment),
	}, nil
}

// SetTenantConfig persists credentials without initializing the runtime; the
// next boot or process start picks them up.
func (b *Bridge) SetTenantConfig(ctx context.Context, apiKey, environment string) (*TenantInfo, error) {
	cfg, err := b.manager.SaveTenant(ctx, apiKey, environment)
	if err != nil {
		if errors.Is(err, tenant.ErrInvalidAPIKey) {
			return nil, wrapf(CodeInvalidArgument, "apiKey must be a non-empty string", err)
		}
		return nil, wrapf(CodeTenantSetFailed, "tenant config could not be saved", err)
	}
	return &TenantInfo{
		APIKeyMasked: MaskAPIKey(cfg.APIKey),
		Environment:  string(cfg.Environment),
	}, nil
}

// ClearTenantConfig erases stored credentials; the live session keeps
// running until the process exits.
func (b *Bridge) ClearTenantConfig(ctx context.Context) error {
	if err := b.manager.ClearTenant(ctx); err != nil {
		return wrapf(CodeTenantClearFailed, "tenant config could not be cleared", err)
	}
	return nil
}

// ClearStoredConfig erases stored credentials and drops the session back to
// uninitialized, so a subsequent boot starts from scratch.
func (b *Bridge) ClearStoredConfig(ctx context.Context) error {
	b.StopGeofenceUpdates()
	if err := b.manager.Reset(ctx); err != nil {
		return wrapf(CodeClearConfigFailed, "stored config could not be cleared", err)
	}
	b.mu.Lock()
	b.pendingRefresh = false
	b.pendingCoords = nil
	b.mu.Unlock()
	return nil
}

func parseNotificationType(raw string) (sdk.NotificationType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "notification":
		return sdk.TypeNotification, true
	case "location":
		return sdk.TypeLocation, true
	case "geofence":
		return sdk.TypeGeofence, true
	default:
		return "", false
	}
}

func parseActivityType(raw string) (sdk.ActivityType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cta_engagement":
		return sdk.ActivityCTAEngagement, true
	case "notification_sent":
		return sdk.ActivityNotificationSent, true
	case "notification_delivered":
		return sdk.ActivityNotificationDelivered, true
	case "media_viewed":
		return sdk.ActivityMediaViewed, true
	case "location_update":
		return sdk.ActivityLocationUpdate, true
	case "geofence_entry":
		return sdk.ActivityGeofenceEntry, true
	case "geofence_exit":
		return sdk.ActivityGeofenceExit, true
	default:
		return "", false
	}
}
