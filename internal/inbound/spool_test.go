package inbound

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bubblbridge/pkg/logx"
)

type collector struct {
	mu       sync.Mutex
	payloads []string
}

func (c *collector) handle(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, string(payload))
}

func (c *collector) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.payloads...)
}

func writeSpoolFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDrainConsumesInNameOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSpoolFile(t, dir, "0002-b.json", `{"n":2}`)
	writeSpoolFile(t, dir, "0001-a.json", `{"n":1}`)
	writeSpoolFile(t, dir, "0003-c.json", `{"n":3}`)
	writeSpoolFile(t, dir, "notes.txt", "not a payload")

	var c collector
	s, err := NewSpool(dir, c.handle, logx.Nop())
	require.NoError(t, err)

	n, err := s.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}, c.all())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "consumed files deleted, non-payload files kept")
	assert.Equal(t, "notes.txt", entries[0].Name())
}

func TestDrainRemovesMalformedFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSpoolFile(t, dir, "0001.json", `{"ok":true}`)
	writeSpoolFile(t, dir, "0002.json", `{"truncated":`)

	var c collector
	s, err := NewSpool(dir, c.handle, logx.Nop())
	require.NoError(t, err)

	n, err := s.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{`{"ok":true}`}, c.all())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "malformed files are removed too")
}

func TestDrainDeduplicatesIdenticalPayloads(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSpoolFile(t, dir, "0001.json", `{"id":7}`)
	writeSpoolFile(t, dir, "0002.json", `{"id":7}`)
	writeSpoolFile(t, dir, "0003.json", `{"id":8}`)

	var c collector
	s, err := NewSpool(dir, c.handle, logx.Nop())
	require.NoError(t, err)

	n, err := s.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{`{"id":7}`, `{"id":8}`}, c.all())
}

func TestDrainEmptyDir(t *testing.T) {
	t.Parallel()

	var c collector
	s, err := NewSpool(t.TempDir(), c.handle, logx.Nop())
	require.NoError(t, err)

	n, err := s.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, c.all())
}

func TestNewSpoolCreatesDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "pending")
	var c collector
	_, err := NewSpool(dir, c.handle, logx.Nop())
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewSpoolValidation(t *testing.T) {
	t.Parallel()

	var c collector
	_, err := NewSpool("", c.handle, logx.Nop())
	assert.Error(t, err)

	_, err = NewSpool(t.TempDir(), nil, logx.Nop())
	assert.Error(t, err)
}

func TestWatchConsumesNewFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var c collector
	s, err := NewSpool(dir, c.handle, logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Watch(ctx)
	}()

	// Give the watcher a moment to attach before producing.
	time.Sleep(300 * time.Millisecond)
	writeSpoolFile(t, dir, "0001.json", `{"headline":"hi"}`)

	require.Eventually(t, func() bool {
		return len(c.all()) == 1
	}, 5*time.Second, 50*time.Millisecond, "watcher should consume the new file")
	assert.Equal(t, []string{`{"headline":"hi"}`}, c.all())

	_, statErr := os.Stat(filepath.Join(dir, "0001.json"))
	assert.True(t, os.IsNotExist(statErr), "consumed file deleted")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestWatchDrainsPreexistingFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSpoolFile(t, dir, "0001.json", `{"cold":"start"}`)

	var c collector
	s, err := NewSpool(dir, c.handle, logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Watch(ctx) }()

	require.Eventually(t, func() bool {
		return len(c.all()) == 1
	}, 5*time.Second, 50*time.Millisecond)
}
