package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdpower/ccdash/internal/engine"
)

type countingReloader struct {
	mu    sync.Mutex
	calls int
}

func (c *countingReloader) Reload(context.Context) (*engine.LoadHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil, nil
}

func (c *countingReloader) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func startWatcher(t *testing.T, root string, r Reloader) *Watcher {
	t.Helper()
	w, err := New(root, r, Options{Debounce: 50 * time.Millisecond, MinInterval: time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func TestBurstOfWritesReloadsOnce(t *testing.T) {
	root := t.TempDir()
	proj := filepath.Join(root, "app")
	require.NoError(t, os.MkdirAll(proj, 0o755))

	r := &countingReloader{}
	w := startWatcher(t, root, r)

	path := filepath.Join(proj, "s.jsonl")
	for i := 0; i < 5; i++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		require.NoError(t, err)
		_, err = f.WriteString("{}\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	assert.Eventually(t, func() bool { return r.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, r.count())
	assert.Equal(t, 1, w.Reloads())
}

func TestIgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	r := &countingReloader{}
	startWatcher(t, root, r)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, r.count())
}

func TestWatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	r := &countingReloader{}
	startWatcher(t, root, r)

	sub := filepath.Join(root, "new-project")
	require.NoError(t, os.Mkdir(sub, 0o755))
	assert.Eventually(t, func() bool { return r.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "s.jsonl"), []byte("{}\n"), 0o644))
	assert.Eventually(t, func() bool { return r.count() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestNewMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), &countingReloader{}, Options{})
	assert.Error(t, err)
}

func TestRunReportsUnexpectedClose(t *testing.T) {
	w, err := New(t.TempDir(), &countingReloader{}, Options{})
	require.NoError(t, err)
	require.NoError(t, w.fsw.Close())

	assert.ErrorIs(t, w.Run(context.Background()), ErrClosed)
}
