package sdk

import (
	"context"
	"time"
)

// Unsupported answers every optional capability with ErrUnsupported. Client
// implementations embed it and override what their vendor build exposes.
type Unsupported struct{}

func (Unsupported) Reinitialize(context.Context, Config) error { return ErrUnsupported }

func (Unsupported) RefetchGeofenceAt(context.Context, float64, float64) error {
	return ErrUnsupported
}

func (Unsupported) ConfigurePolling(context.Context, time.Duration, time.Duration) error {
	return ErrUnsupported
}

func (Unsupported) ClearCachedCampaigns(context.Context) error { return ErrUnsupported }
