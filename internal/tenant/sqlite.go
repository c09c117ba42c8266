package tenant

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"bubblbridge/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg StoreConfig, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	// Credentials are written once per tenant change; a flushed write is
	// worth more than write throughput here.
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Load(ctx context.Context) (StoredConfig, error) {
	if s == nil || s.db == nil {
		return StoredConfig{}, ErrNotFound
	}
	var cfg StoredConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT api_key, environment FROM tenant WHERE id = 1`,
	).Scan(&cfg.APIKey, &cfg.Environment)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredConfig{}, ErrNotFound
	}
	if err != nil {
		return StoredConfig{}, err
	}
	if cfg.APIKey == "" {
		return StoredConfig{}, ErrNotFound
	}
	return cfg, nil
}

func (s *sqliteStore) Save(ctx context.Context, cfg StoredConfig) error {
	if s == nil || s.db == nil {
		return errors.New("tenant store closed")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant(id, api_key, environment, updated_at) VALUES(1,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET api_key=excluded.api_key, environment=excluded.environment, updated_at=excluded.updated_at`,
		cfg.APIKey, cfg.Environment, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM tenant WHERE id = 1`)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
