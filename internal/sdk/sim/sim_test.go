package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bubblbridge/internal/sdk"
)

func TestStartAuthenticates(t *testing.T) {
	t.Parallel()

	c := New(Options{AuthDelay: -1})
	defer c.Close()

	require.NoError(t, c.Start(context.Background(), sdk.Config{APIKey: "k", Environment: sdk.EnvStaging}))

	select {
	case res := <-c.AuthEvents():
		require.NoError(t, res.Err)
		assert.NotEmpty(t, res.DeviceID)
		assert.NotEmpty(t, res.BubblID)
	case <-time.After(time.Second):
		t.Fatal("no auth event after start")
	}
}

func TestStartTwiceFails(t *testing.T) {
	t.Parallel()

	c := New(Options{AuthDelay: -1})
	defer c.Close()

	require.NoError(t, c.Start(context.Background(), sdk.Config{APIKey: "k"}))
	assert.Error(t, c.Start(context.Background(), sdk.Config{APIKey: "k"}))
}

func TestReinitializeIssuesNewIdentity(t *testing.T) {
	t.Parallel()

	c := New(Options{AuthDelay: -1})
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Start(ctx, sdk.Config{APIKey: "a"}))
	first := <-c.AuthEvents()

	require.NoError(t, c.Reinitialize(ctx, sdk.Config{APIKey: "b"}))
	second := <-c.AuthEvents()

	assert.NotEqual(t, first.DeviceID, second.DeviceID)
	assert.NotEqual(t, first.BubblID, second.BubblID)
}

func TestRefetchServesPolygons(t *testing.T) {
	t.Parallel()

	c := New(Options{AuthDelay: -1})
	defer c.Close()

	ctx := context.Background()
	require.Error(t, c.RefetchGeofence(ctx), "refetch before start must fail")

	require.NoError(t, c.Start(ctx, sdk.Config{APIKey: "k"}))
	require.NoError(t, c.RefetchGeofence(ctx))

	select {
	case polys := <-c.PolygonUpdates():
		assert.NotEmpty(t, polys)
	case <-time.After(time.Second):
		t.Fatal("no polygon update after refetch")
	}
}

func TestOptionalCapabilities(t *testing.T) {
	t.Parallel()

	c := New(Options{AuthDelay: -1})
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Start(ctx, sdk.Config{APIKey: "k"}))

	assert.NoError(t, c.RefetchGeofenceAt(ctx, 51.5, -0.07), "coordinate refetch is supported")
	assert.True(t, errors.Is(c.ConfigurePolling(ctx, time.Minute, time.Hour), sdk.ErrUnsupported))
	assert.True(t, errors.Is(c.ClearCachedCampaigns(ctx), sdk.ErrUnsupported))
}

func TestLocationAuthorizationGrants(t *testing.T) {
	t.Parallel()

	c := New(Options{AuthDelay: -1})
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Start(ctx, sdk.Config{APIKey: "k"}))
	require.NoError(t, c.RequestLocationAuthorization(ctx))

	select {
	case st := <-c.LocationAuthEvents():
		assert.Equal(t, sdk.AuthAlways, st)
	case <-time.After(time.Second):
		t.Fatal("no location auth event")
	}
}

func TestCloseIsIdempotentAndClosesStreams(t *testing.T) {
	t.Parallel()

	c := New(Options{AuthDelay: -1})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, open := <-c.AuthEvents()
	assert.False(t, open)
}
