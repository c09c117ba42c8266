package tenant

import (
	"context"
	"sync"
)

// memoryStore keeps credentials in-process. Tests use it; it also lets the
// daemon run without a writable data directory.
type memoryStore struct {
	mu   sync.Mutex
	cfg  StoredConfig
	set  bool
	fail error // injected write failure, tests only
}

func newMemoryStore() *memoryStore { return &memoryStore{} }

func (s *memoryStore) Load(ctx context.Context) (StoredConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return StoredConfig{}, ErrNotFound
	}
	return s.cfg, nil
}

func (s *memoryStore) Save(ctx context.Context, cfg StoredConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.cfg = cfg
	s.set = true
	return nil
}

func (s *memoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = StoredConfig{}
	s.set = false
	return nil
}

func (s *memoryStore) Close() error { return nil }
