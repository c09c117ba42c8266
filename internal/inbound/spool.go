// Package inbound feeds externally delivered notification payloads into the
// bridge. Producers (push daemons, test harnesses) drop one JSON payload per
// file into a spool directory; the bridge drains the spool on cold start and
// then watches it for new files, so notifications delivered while no
// consumer was attached are never lost.
package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"bubblbridge/pkg/logx"
)

// Handler consumes one spooled payload. It runs on the spool goroutine; the
// payload is valid JSON but otherwise untrusted.
type Handler func(payload []byte)

// Spool is a directory of pending *.json payload files, consumed oldest
// first by file name and deleted after handoff.
type Spool struct {
	dir     string
	handler Handler
	log     logx.Logger

	mu       sync.Mutex
	recent   map[uint64]time.Time // consumed-content fingerprints
	draining bool
}

// dedupWindow guards against a producer re-dropping an identical payload
// while a burst of fsnotify events for the same file is still settling.
const dedupWindow = 2 * time.Second

const settleDelay = 250 * time.Millisecond

// NewSpool builds a spool over dir, creating it when missing.
func NewSpool(dir string, handler Handler, log logx.Logger) (*Spool, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("inbound: spool dir is required")
	}
	if handler == nil {
		return nil, errors.New("inbound: handler is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Spool{dir: dir, handler: handler, log: log, recent: make(map[uint64]time.Time)}, nil
}

// Drain consumes every pending payload in file-name order and reports how
// many were handed to the handler. Malformed files are logged and removed,
// never fatal.
func (s *Spool) Drain(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return 0, nil
	}
	s.draining = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.draining = false
		s.mu.Unlock()
	}()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	consumed := 0
	for _, name := range names {
		if ctx.Err() != nil {
			return consumed, ctx.Err()
		}
		if s.consumeFile(filepath.Join(s.dir, name)) {
			consumed++
		}
	}
	return consumed, nil
}

// consumeFile reads, validates, hands off, and deletes one spool file. It
// reports whether the handler saw the payload.
func (s *Spool) consumeFile(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("spool file unreadable", logx.String("path", path), logx.Err(err))
		}
		return false
	}

	if !json.Valid(data) {
		// Likely a partial write or a broken producer; either way the file
		// can never become consumable.
		s.log.Warn("dropping malformed spool payload",
			logx.String("path", path), logx.Int("bytes", len(data)))
		_ = os.Remove(path)
		return false
	}

	if s.recentlySeen(data) {
		s.log.Debug("skipping duplicate spool payload", logx.String("path", path))
		_ = os.Remove(path)
		return false
	}

	s.handler(data)
	_ = os.Remove(path)
	return true
}

func (s *Spool) recentlySeen(data []byte) bool {
	h := fnv.New64a()
	_, _ = h.Write(data)
	sum := h.Sum64()

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, at := range s.recent {
		if now.Sub(at) > dedupWindow {
			delete(s.recent, k)
		}
	}
	if at, ok := s.recent[sum]; ok && now.Sub(at) <= dedupWindow {
		return true
	}
	s.recent[sum] = now
	return false
}

// Watch tails the spool directory until ctx is cancelled. The watcher is
// recreated with jittered backoff when the backend breaks; each event burst
// settles briefly before a drain pass so partial writes are not consumed.
func (s *Spool) Watch(ctx context.Context) error {
	const (
		backoffBase = 250 * time.Millisecond
		backoffMax  = 5 * time.Second
	)
	backoff := backoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	schedule := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(settleDelay, func() {
			if ctx.Err() != nil {
				return
			}
			if n, err := s.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Warn("spool drain failed", logx.Err(err))
			} else if n > 0 {
				s.log.Debug("spool drained", logx.Int("consumed", n))
			}
		})
	}

	retry := func() bool {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff < backoffMax {
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
			return true
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err != nil {
			s.log.Warn("spool watch init failed", logx.Err(err), logx.String("dir", s.dir))
			if !retry() {
				return nil
			}
			continue
		}
		if err := w.Add(s.dir); err != nil {
			_ = w.Close()
			s.log.Warn("spool watch add failed", logx.Err(err), logx.String("dir", s.dir))
			if !retry() {
				return nil
			}
			continue
		}

		backoff = backoffBase
		s.log.Debug("spool watcher started", logx.String("dir", s.dir))

		// Anything spooled between the last drain and the watch starting.
		schedule()

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 &&
					strings.HasSuffix(strings.ToLower(ev.Name), ".json") {
					schedule()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				// Overflow means missed events; a drain pass recovers them.
				if strings.Contains(strings.ToLower(err.Error()), "overflow") {
					s.log.Warn("spool watch overflow; forcing drain", logx.Err(err))
					schedule()
					continue
				}
				s.log.Warn("spool watch error", logx.Err(err))
				if strings.Contains(strings.ToLower(err.Error()), "closed") {
					broken = true
					break
				}
			}
		}

		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("spool watcher stopped; restarting", logx.String("dir", s.dir))
		if !retry() {
			return nil
		}
	}
}
