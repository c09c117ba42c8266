// Package devicelog streams a bounded tail of the bridge's log sink to
// listeners, suppressing emissions whose content has not changed.
package devicelog

import (
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"bubblbridge/pkg/logx"
)

// Interval clamp bounds, in milliseconds.
const (
	MinIntervalMs = 1000
	MaxIntervalMs = 30000

	DefaultIntervalMs = 2500
	DefaultMaxLines   = 80
)

// Snapshot is the wire shape delivered on the device-log channel.
type Snapshot struct {
	DeviceType     string   `json:"deviceType"`
	DeviceID       string   `json:"deviceId"`
	DeviceIDSuffix string   `json:"deviceIdSuffix"`
	Timestamp      int64    `json:"timestamp"`
	Lines          []string `json:"lines"`
}

// Info describes the local stream endpoint without starting anything.
type Info struct {
	DeviceType     string `json:"deviceType"`
	DeviceID       string `json:"deviceId"`
	DeviceIDSuffix string `json:"deviceIdSuffix"`
}

type StartOptions struct {
	IntervalMs         int64
	MaxLines           int
	TargetDeviceSuffix string
}

type StartResult struct {
	Started        bool   `json:"started"`
	Reason         string `json:"reason"`
	DeviceIDSuffix string `json:"deviceIdSuffix"`
}

// Start result reasons.
const (
	ReasonOK             = "ok"
	ReasonSuffixMismatch = "device_suffix_mismatch"
)

// Emit receives every published snapshot.
type Emit func(Snapshot)

// PathFunc resolves the log sink path at read time, so a log service that
// reopens its file after a config apply stays tailed.
type PathFunc func() string

// Streamer polls the log sink on a fixed interval and emits a snapshot
// when the tail content changed since the last emission (or when forced).
// At most one run is active; Start replaces any prior run, Stop is
// idempotent.
type Streamer struct {
	identity Identity
	path     PathFunc
	emit     Emit
	log      logx.Logger

	mu              sync.Mutex
	runner          *cron.Cron
	maxLines        int
	lastFingerprint string
	fingerprintSet  bool
}

func New(identity Identity, path PathFunc, emit Emit, log logx.Logger) *Streamer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Streamer{identity: identity, path: path, emit: emit, log: log}
}

func (s *Streamer) Info() Info {
	return Info{
		DeviceType:     s.identity.Platform,
		DeviceID:       s.identity.ID,
		DeviceIDSuffix: s.identity.Suffix(),
	}
}

// Tail returns the current bounded tail without touching the stream state.
func (s *Streamer) Tail(maxLines int) []string {
	return TailFile(s.path(), ClampLines(maxLines))
}

// Start begins (or restarts) the polling loop. When a target suffix is
// supplied and does not match this device, nothing starts: a multi-device
// test harness addresses one physical device by suffix without starting
// streams everywhere else.
func (s *Streamer) Start(opts StartOptions) StartResult {
	intervalMs := opts.IntervalMs
	if intervalMs == 0 {
		intervalMs = DefaultIntervalMs
	}
	if intervalMs < MinIntervalMs {
		intervalMs = MinIntervalMs
	}
	if intervalMs > MaxIntervalMs {
		intervalMs = MaxIntervalMs
	}

	maxLines := opts.MaxLines
	if maxLines == 0 {
		maxLines = DefaultMaxLines
	}
	maxLines = ClampLines(maxLines)

	suffix := s.identity.Suffix()
	target := strings.ToLower(strings.TrimSpace(opts.TargetDeviceSuffix))
	if target != "" && target != strings.ToLower(suffix) {
		return StartResult{
			Started:        false,
			Reason:         ReasonSuffixMismatch,
			DeviceIDSuffix: suffix,
		}
	}

	s.mu.Lock()
	s.stopLocked()
	s.maxLines = maxLines
	s.lastFingerprint = ""
	s.fingerprintSet = false

	runner := cron.New()
	interval := time.Duration(intervalMs) * time.Millisecond
	runner.Schedule(cron.Every(interval), cron.FuncJob(func() {
		s.poll(false)
	}))
	// The runner must be live before the lock drops: a Stop that arrives
	// during the first poll then stops a started scheduler instead of
	// no-opping on an idle one it can never reach again.
	runner.Start()
	s.runner = runner
	s.mu.Unlock()

	// First snapshot goes out immediately, bypassing de-duplication. A
	// Stop or replacing Start that already took ownership skips it.
	s.mu.Lock()
	owned := s.runner == runner
	s.mu.Unlock()
	if owned {
		s.poll(true)
	}

	s.log.Debug("device log stream started",
		logx.Int64("interval_ms", intervalMs),
		logx.Int("max_lines", maxLines))

	return StartResult{Started: true, Reason: ReasonOK, DeviceIDSuffix: suffix}
}

// Stop cancels the polling loop. Calling Stop when already stopped is a
// no-op.
func (s *Streamer) Stop() {
	s.mu.Lock()
	stopped := s.stopLocked()
	s.mu.Unlock()
	if stopped {
		s.log.Debug("device log stream stopped")
	}
}

func (s *Streamer) stopLocked() bool {
	if s.runner == nil {
		return false
	}
	s.runner.Stop()
	s.runner = nil
	return true
}

// Running reports whether a poll loop is active.
func (s *Streamer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner != nil
}

func (s *Streamer) poll(force bool) {
	s.mu.Lock()
	maxLines := s.maxLines
	s.mu.Unlock()
	if maxLines == 0 {
		maxLines = DefaultMaxLines
	}

	lines := TailFile(s.path(), maxLines)
	fingerprint := strings.Join(lines, "\n")

	s.mu.Lock()
	if !force && s.fingerprintSet && fingerprint == s.lastFingerprint {
		s.mu.Unlock()
		return
	}
	s.lastFingerprint = fingerprint
	s.fingerprintSet = true
	s.mu.Unlock()

	if s.emit == nil {
		return
	}
	s.emit(Snapshot{
		DeviceType:     s.identity.Platform,
		DeviceID:       s.identity.ID,
		DeviceIDSuffix: s.identity.Suffix(),
		Timestamp:      time.Now().UnixMilli(),
		Lines:          lines,
	})
}
