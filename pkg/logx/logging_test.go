package logx

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type forwardCapture struct {
	mu    sync.Mutex
	lines []string
}

func (c *forwardCapture) fn(_ Level, line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

func (c *forwardCapture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

func (c *forwardCapture) first() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines[0]
}

func TestForwardSinkDeliversWarnLines(t *testing.T) {
	t.Parallel()
	cap := &forwardCapture{}
	svc, log := New(Config{
		Level:   "debug",
		Forward: ForwardConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100},
	}, cap.fn)
	defer func() { _ = svc.Close() }()

	log.Warn("spool watcher stalled", String("dir", "/tmp/spool"))

	require.Eventually(t, func() bool { return cap.count() == 1 },
		2*time.Second, 10*time.Millisecond)
	line := cap.first()
	assert.Contains(t, line, "[WARN]")
	assert.Contains(t, line, "spool watcher stalled")
	assert.Contains(t, line, "dir=/tmp/spool")
}

func TestForwardSinkFiltersBelowMinLevel(t *testing.T) {
	t.Parallel()
	cap := &forwardCapture{}
	svc, log := New(Config{
		Level:   "debug",
		Forward: ForwardConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100},
	}, cap.fn)
	defer func() { _ = svc.Close() }()

	log.Info("routine startup detail")

	assert.Never(t, func() bool { return cap.count() > 0 },
		300*time.Millisecond, 25*time.Millisecond)
}

func TestSetForwardInstallsSinkAfterNew(t *testing.T) {
	t.Parallel()

	// The daemon constructs the service before the bus exists and installs
	// the sink afterwards; lines logged from then on must arrive.
	cap := &forwardCapture{}
	svc, log := New(Config{
		Level:   "info",
		Forward: ForwardConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100},
	}, nil)
	defer func() { _ = svc.Close() }()

	svc.SetForward(cap.fn)
	log.Warn("tenant store degraded")

	require.Eventually(t, func() bool { return cap.count() == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Contains(t, cap.first(), "tenant store degraded")
}

func TestForwardSinkRateLimits(t *testing.T) {
	t.Parallel()
	cap := &forwardCapture{}
	svc, log := New(Config{
		Level:   "info",
		Forward: ForwardConfig{Enabled: true, MinLevel: "warn", RatePerSec: 1},
	}, cap.fn)
	defer func() { _ = svc.Close() }()

	for i := 0; i < 5; i++ {
		log.Warn("repeated failure")
	}

	require.Eventually(t, func() bool { return cap.count() >= 1 },
		time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return cap.count() > 1 },
		500*time.Millisecond, 50*time.Millisecond)
}
