package tenant

import (
	"context"
	"errors"
	"sync"

	"bubblbridge/internal/sdk"
	"bubblbridge/pkg/logx"
)

// LifecycleState is the session state machine. The only transition into
// StateInitialized is tryInitialize under the manager lock; there is no raw
// boolean to check-then-set across goroutines.
type LifecycleState int

const (
	StateUninitialized LifecycleState = iota
	StateInitialized
)

func (s LifecycleState) String() string {
	if s == StateInitialized {
		return "initialized"
	}
	return "uninitialized"
}

// Restarter relaunches the process after a tenant change the vendor runtime
// cannot absorb in place. Production uses ExecRestarter.
type Restarter interface {
	Restart()
}

// Result reports what a Boot call actually did.
type Result struct {
	InitializedNow            bool `json:"initializedNow"`
	AlreadyInitialized        bool `json:"alreadyInitialized"`
	RestartingForTenantChange bool `json:"restartingForTenantChange,omitempty"`
}

// Manager drives the tenant session lifecycle against a Store and an
// sdk.Client.
type Manager struct {
	store     Store
	client    sdk.Client
	restarter Restarter
	log       logx.Logger

	// onTeardown stops live geofence subscriptions before the vendor
	// runtime is reconfigured. Set by the bridge, may be nil.
	onTeardown func()

	mu            sync.Mutex
	state         LifecycleState
	active        BootConfig
	authenticated bool
	bootstrapped  bool
}

// NewManager wires a lifecycle manager. A nil restarter makes tenant-change
// restarts a logged no-op, which only makes sense in tests.
func NewManager(store Store, client sdk.Client, restarter Restarter, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{store: store, client: client, restarter: restarter, log: log}
}

// SetTeardown registers the hook run before in-place reinitialization.
func (m *Manager) SetTeardown(fn func()) {
	m.mu.Lock()
	m.onTeardown = fn
	m.mu.Unlock()
}

// tryInitialize is the single entry into StateInitialized. Callers hold mu.
func (m *Manager) tryInitialize() bool {
	if m.state == StateInitialized {
		return false
	}
	m.state = StateInitialized
	return true
}

// Boot resolves a boot call:
//
//  1. normalize arguments; empty key fails with ErrInvalidAPIKey
//  2. load the previously persisted tenant
//  3. tenantChanged = none stored, or key/environment differ
//  4. persist the new tenant unconditionally
//  5. initialized + equal config + unchanged tenant: no-op
//  6. tenant changed while initialized: in-place reinit when the client
//     supports it, otherwise resolve the call and restart the process
//  7. otherwise: first (or retried) vendor initialization
//
// Vendor authentication failures are not Boot errors; they arrive later on
// the client's auth stream.
func (m *Manager) Boot(ctx context.Context, apiKey, environment string, opts BootOptions) (Result, error) {
	cfg := NormalizeBootConfig(apiKey, environment, opts)
	if cfg.APIKey == "" {
		return Result{}, ErrInvalidAPIKey
	}

	prev, err := m.store.Load(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		// Unreadable storage is treated as no stored tenant; the
		// unconditional save below either repairs it or fails the boot.
		m.log.Warn("stored tenant unreadable", logx.Err(err))
		err = ErrNotFound
	}
	tenantChanged := errors.Is(err, ErrNotFound) ||
		prev.APIKey != cfg.APIKey ||
		!environmentsEqual(prev.Environment, cfg.Environment)

	if err := m.store.Save(ctx, StoredConfig{
		APIKey:      cfg.APIKey,
		Environment: string(cfg.Environment),
	}); err != nil {
		return Result{}, &PersistError{Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateInitialized {
		if !tenantChanged && m.active.Equal(cfg) {
			return Result{AlreadyInitialized: true}, nil
		}
		// Covers both a tenant change and a changed tag set or poll
		// interval: the live runtime cannot absorb either via Start.
		return m.reconfigureLocked(ctx, cfg, opts.DefaultDistance)
	}

	if err := m.client.Start(ctx, cfg.sdkConfig(opts.DefaultDistance)); err != nil {
		return Result{}, err
	}
	m.tryInitialize()
	m.active = cfg
	m.log.Info("tenant session initialized",
		logx.String("environment", string(cfg.Environment)),
		logx.Int("segments", len(cfg.SegmentationTags)))
	return Result{InitializedNow: true}, nil
}

// reconfigureLocked handles a tenant change after the vendor runtime already
// captured the old configuration. The new tenant is persisted by the time we
// get here, so the restart path only has to relaunch: the next cold start
// bootstraps from storage.
func (m *Manager) reconfigureLocked(ctx context.Context, cfg BootConfig, defaultDistance int) (Result, error) {
	if m.onTeardown != nil {
		m.onTeardown()
	}
	m.authenticated = false

	err := m.client.Reinitialize(ctx, cfg.sdkConfig(defaultDistance))
	switch {
	case err == nil:
		m.active = cfg
		m.log.Info("tenant changed, runtime reinitialized in place",
			logx.String("environment", string(cfg.Environment)))
		return Result{InitializedNow: true}, nil
	case errors.Is(err, sdk.ErrUnsupported):
		m.log.Warn("tenant changed, runtime cannot reconfigure in place, restarting process")
		// The caller gets its result before the restart fires; the restarter
		// runs off this goroutine and never blocks the resolve.
		if m.restarter != nil {
			go m.restarter.Restart()
		}
		return Result{AlreadyInitialized: true, RestartingForTenantChange: true}, nil
	default:
		return Result{}, err
	}
}

// Bootstrap performs the once-per-process auto-initialization from the
// stored tenant, with empty segmentation tags and no poll override. It must
// run before the first application boot call; repeat calls are no-ops.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bootstrapped || m.state == StateInitialized {
		m.bootstrapped = true
		return nil
	}
	m.bootstrapped = true

	stored, err := m.store.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		m.log.Debug("no stored tenant, skipping bootstrap")
		return nil
	}
	if err != nil {
		return err
	}

	cfg := BootConfig{
		APIKey:      stored.APIKey,
		Environment: sdk.ParseEnvironment(stored.Environment),
	}
	if err := m.client.Start(ctx, cfg.sdkConfig(0)); err != nil {
		return err
	}
	m.tryInitialize()
	m.active = cfg
	m.log.Info("bootstrapped from stored tenant",
		logx.String("environment", string(cfg.Environment)))
	return nil
}

// Initialized reports whether the vendor runtime was started this process.
func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateInitialized
}

// Active returns the live boot config, when initialized.
func (m *Manager) Active() (BootConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.state == StateInitialized
}

// Authenticated reports whether the vendor auth callback has completed for
// the current session.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

func (m *Manager) SetAuthenticated(v bool) {
	m.mu.Lock()
	m.authenticated = v
	m.mu.Unlock()
}

// StoredTenant reads the persisted tenant without touching session state.
func (m *Manager) StoredTenant(ctx context.Context) (Config, error) {
	stored, err := m.store.Load(ctx)
	if err != nil {
		return Config{}, err
	}
	return Config{
		APIKey:      stored.APIKey,
		Environment: sdk.ParseEnvironment(stored.Environment),
	}, nil
}

// SaveTenant persists credentials without initializing the runtime. The next
// boot or process start picks them up.
func (m *Manager) SaveTenant(ctx context.Context, apiKey, environment string) (Config, error) {
	key := NormalizeBootConfig(apiKey, environment, BootOptions{})
	if key.APIKey == "" {
		return Config{}, ErrInvalidAPIKey
	}
	if err := m.store.Save(ctx, StoredConfig{
		APIKey:      key.APIKey,
		Environment: string(key.Environment),
	}); err != nil {
		return Config{}, &PersistError{Err: err}
	}
	return key.Tenant(), nil
}

// ClearTenant erases stored credentials. The live session, if any, keeps
// running until the process exits.
func (m *Manager) ClearTenant(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return &PersistError{Err: err}
	}
	return nil
}

// Reset erases stored credentials and drops the session back to
// uninitialized so a subsequent boot starts from scratch.
func (m *Manager) Reset(ctx context.Context) error {
	if err := m.ClearTenant(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateUninitialized
	m.active = BootConfig{}
	m.authenticated = false
	return nil
}

func environmentsEqual(stored string, env sdk.Environment) bool {
	return sdk.ParseEnvironment(stored) == env
}
