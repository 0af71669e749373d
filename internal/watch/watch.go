// Package watch reloads the engine when usage logs change on disk.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/sdpower/ccdash/internal/engine"
	"github.com/sdpower/ccdash/internal/logging"
)

const (
	DefaultDebounce    = 2 * time.Second
	DefaultMinInterval = 10 * time.Second
)

// ErrClosed is returned by Run when the underlying watcher shut down while
// its context was still live
var ErrClosed = errors.New("file watcher closed")

type Reloader interface {
	Reload(ctx context.Context) (*engine.LoadHandle, error)
}

type Options struct {
	// Debounce is how long the tree must stay quiet before a reload
	Debounce time.Duration
	// MinInterval caps how often reloads may start
	MinInterval time.Duration
	Logger      *slog.Logger
}

// Watcher turns bursts of log writes under a root into single reloads
type Watcher struct {
	root     string
	target   Reloader
	debounce time.Duration
	limiter  *rate.Limiter
	logger   *slog.Logger
	fsw      *fsnotify.Watcher

	mu         sync.Mutex
	generation int
	reloads    int
}

func New(root string, target Reloader, opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	minInterval := opts.MinInterval
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	w := &Watcher{
		root:     root,
		target:   target,
		debounce: debounce,
		limiter:  rate.NewLimiter(rate.Every(minInterval), 1),
		logger:   logger,
		fsw:      fsw,
	}
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addRecursive watches dir and every directory below it
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Debug("cannot watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// Run processes events until ctx is done, then releases the watcher
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.generation++
			w.mu.Unlock()
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return w.closed(ctx)
			}
			w.handle(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return w.closed(ctx)
			}
			w.logger.Warn("watch error", "root", w.root, "error", err)
		}
	}
}

func (w *Watcher) closed(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	return ErrClosed
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if isDir(event.Name) {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Debug("cannot watch new directory", "path", event.Name, "error", err)
			}
			w.schedule(ctx)
			return
		}
	}
	if !strings.EqualFold(filepath.Ext(event.Name), ".jsonl") {
		return
	}
	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.schedule(ctx)
	}
}

// schedule restarts the quiet-period timer; only the newest timer fires
func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	w.generation++
	gen := w.generation
	w.mu.Unlock()

	time.AfterFunc(w.debounce, func() {
		w.fire(ctx, gen)
	})
}

func (w *Watcher) fire(ctx context.Context, gen int) {
	w.mu.Lock()
	stale := gen != w.generation
	w.mu.Unlock()
	if stale {
		return
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	h, err := w.target.Reload(ctx)
	if err != nil {
		w.logger.Warn("reload after change failed", "root", w.root, "error", err)
		return
	}
	if h != nil {
		w.logger.Debug("reloading after change", "root", w.root, "load", h.ID)
	}
}

// Reloads is the number of reloads started so far
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
