package tenant

import (
	"context"
	"errors"
	"strings"
	"time"

	"bubblbridge/pkg/logx"
)

// ErrNotFound is returned by Load when no tenant credentials were ever
// persisted (or they were cleared).
var ErrNotFound = errors.New("tenant: no stored config")

// StoredConfig is the durable part of a tenant session: enough to
// re-authenticate after a process restart, and nothing more. Segmentation
// tags and poll overrides are runtime-only and never persisted.
type StoredConfig struct {
	APIKey      string
	Environment string
}

// Store persists tenant credentials across process restarts.
type Store interface {
	Load(ctx context.Context) (StoredConfig, error)
	Save(ctx context.Context, cfg StoredConfig) error
	Clear(ctx context.Context) error
	Close() error
}

// StoreConfig configures the persistence backend.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": process-local, for tests
type StoreConfig struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// OpenStore initializes the configured store.
func OpenStore(cfg StoreConfig, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return newMemoryStore(), nil
	default:
		return nil, errors.New("unknown tenant store driver: " + cfg.Driver)
	}
}
