// Package engine is the query surface over loaded usage data.
//
// Load runs a fast phase over recent files in the foreground, publishes it,
// then sweeps the whole history in the background and replaces the published
// dataset when done. Queries never wait for the sweep; they aggregate
// whichever dataset is published at the time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sdpower/ccdash/internal/aggregator"
	"github.com/sdpower/ccdash/internal/calculator"
	"github.com/sdpower/ccdash/internal/loader"
	"github.com/sdpower/ccdash/internal/logging"
	"github.com/sdpower/ccdash/internal/types"
)

const maxCachedSnapshots = 64

type Options struct {
	// RecentDays bounds the fast phase, default 7
	RecentDays int
	Workers    int
	// Location is used for day buckets and custom ranges, default time.Local
	Location *time.Location
	Logger   *slog.Logger
	Clock    func() time.Time
}

type phaseRunner interface {
	Run(ctx context.Context, root string, spec loader.PhaseSpec) (*loader.Dataset, error)
}

// published is one immutable dataset plus the snapshots computed from it
type published struct {
	ds *loader.Dataset

	mu    sync.Mutex
	cache map[string]*types.AggregateSnapshot
}

type Engine struct {
	loader phaseRunner
	loc    *time.Location
	clock  func() time.Time
	logger *slog.Logger
	days   int

	current atomic.Pointer[published]

	// mu serializes publication and status changes. It is never held
	// across disk reads.
	mu         sync.Mutex
	generation uint64
	active     *LoadHandle
	root       string
	status     types.LoadStatus
	closed     bool
	updates    chan types.LoadStatus
}

func New(calc *calculator.Calculator, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	days := opts.RecentDays
	if days <= 0 {
		days = loader.DefaultRecentDays
	}

	e := &Engine{
		loader:  loader.New(calc, loader.Options{Workers: opts.Workers, Logger: logger}),
		loc:     loc,
		clock:   clock,
		logger:  logger,
		days:    days,
		updates: make(chan types.LoadStatus, 1),
	}
	e.status = types.LoadStatus{State: types.StateIdle, UpdatedAt: clock()}
	return e
}

// Load starts a two-phase load of root and returns once the fast phase is
// published. Any load still running is cancelled and its result discarded.
// A DiscoveryError aborts the attempt; calling Load again retries.
func (e *Engine) Load(ctx context.Context, root string) (*LoadHandle, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, types.ErrEngineClosed
	}
	if e.active != nil {
		e.active.Cancel()
	}
	e.generation++
	gen := e.generation
	h := newLoadHandle(root, e.clock())
	e.active = h
	e.root = root
	e.setStatusLocked(types.LoadStatus{
		State:     types.StateFastPhaseRunning,
		Root:      root,
		LoadID:    h.ID,
		Published: e.publishedPhase(),
	})
	e.mu.Unlock()

	fgCtx, cancelFg := context.WithCancel(ctx)
	defer cancelFg()
	stop := context.AfterFunc(h.ctx, cancelFg)
	defer stop()

	fast, err := e.loader.Run(fgCtx, root, loader.FastPhase(e.clock(), e.days))
	if err != nil {
		e.fail(gen, h, err)
		h.finish(err)
		return nil, err
	}

	if !e.publish(gen, h, fast, func(s *types.LoadStatus) {
		s.State = types.StateFullPhaseRunning
		s.FastErrors = fast.Errors
		s.FastDuration = fast.Duration
	}) {
		h.finish(context.Canceled)
		return nil, fmt.Errorf("load of %s superseded: %w", root, context.Canceled)
	}

	go e.runFull(gen, h)
	return h, nil
}

func (e *Engine) runFull(gen uint64, h *LoadHandle) {
	full, err := e.loader.Run(h.ctx, h.Root, loader.FullPhase())
	if err != nil {
		e.fail(gen, h, err)
		h.finish(err)
		return
	}

	if !e.publish(gen, h, full, func(s *types.LoadStatus) {
		s.State = types.StateFullPhaseDone
		s.FullErrors = full.Errors
		s.FullDuration = full.Duration
	}) {
		h.finish(context.Canceled)
		return
	}
	h.finish(nil)
}

// publish swaps in ds if gen is still the current load and h was not
// cancelled. The fast phase reports FastPhaseDone before update moves it on.
func (e *Engine) publish(gen uint64, h *LoadHandle, ds *loader.Dataset, update func(*types.LoadStatus)) bool {
	p := &published{ds: ds, cache: make(map[string]*types.AggregateSnapshot)}

	// everything-window snapshot does not depend on the clock; prime it
	// and take the defect count from it
	all := aggregator.Build(ds.All(), types.Window{}, e.loc, aggregator.Meta{
		TimeRange:   types.AllTime,
		Phase:       ds.Phase,
		GeneratedAt: e.clock(),
	})
	ds.Errors.Defects = all.Defects
	p.cache[cacheKey(types.AllTime, types.Window{})] = all

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation || e.closed || h.ctx.Err() != nil {
		e.logger.Debug("discarding abandoned dataset", "phase", ds.Phase, "load", h.ID)
		return false
	}

	e.current.Store(p)

	s := e.status
	s.Published = ds.Phase
	if ds.Phase == types.PhaseFast {
		done := s
		done.State = types.StateFastPhaseDone
		done.FastErrors = ds.Errors
		done.FastDuration = ds.Duration
		e.setStatusLocked(done)
		s = e.status
	}
	update(&s)
	e.setStatusLocked(s)
	return true
}

func (e *Engine) fail(gen uint64, h *LoadHandle, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation || e.closed {
		return
	}

	reason := err.Error()
	if errors.Is(err, context.Canceled) && h.ctx.Err() != nil {
		reason = "load cancelled"
	}
	s := e.status
	s.State = types.StateFailed
	s.Reason = reason
	s.Published = e.publishedPhase()
	e.setStatusLocked(s)

	e.logger.Warn("load failed", "root", h.Root, "error", err, "published", s.Published)
}

// setStatusLocked records s and offers it on the updates channel, replacing
// any status the consumer has not read yet
func (e *Engine) setStatusLocked(s types.LoadStatus) {
	s.UpdatedAt = e.clock()
	e.status = s
	if e.closed {
		return
	}
	select {
	case <-e.updates:
	default:
	}
	e.updates <- s
}

func (e *Engine) publishedPhase() types.Phase {
	if p := e.current.Load(); p != nil {
		return p.ds.Phase
	}
	return types.PhaseNone
}

// Query returns aggregates for tr over the published dataset. Relative
// ranges resolve against the engine clock. Snapshots are cached per second,
// so a repeated query may return one computed up to a second earlier.
func (e *Engine) Query(tr types.TimeRange) *types.AggregateSnapshot {
	now := e.clock()
	w := tr.Resolve(now, e.loc)

	p := e.current.Load()
	if p == nil {
		snap := types.EmptySnapshot(tr, w)
		snap.GeneratedAt = now
		return snap
	}

	key := cacheKey(tr, tr.Resolve(now.Truncate(time.Second), e.loc))
	p.mu.Lock()
	if snap, ok := p.cache[key]; ok {
		p.mu.Unlock()
		return snap
	}
	p.mu.Unlock()

	snap := aggregator.Build(p.ds.All(), w, e.loc, aggregator.Meta{
		TimeRange:   tr,
		Phase:       p.ds.Phase,
		GeneratedAt: now,
	})

	p.mu.Lock()
	if len(p.cache) >= maxCachedSnapshots {
		all := p.cache[cacheKey(types.AllTime, types.Window{})]
		clear(p.cache)
		if all != nil {
			p.cache[cacheKey(types.AllTime, types.Window{})] = all
		}
	}
	p.cache[key] = snap
	p.mu.Unlock()
	return snap
}

func cacheKey(tr types.TimeRange, w types.Window) string {
	return string(tr.Kind) + "|" + w.Key()
}

func (e *Engine) LoadStatus() types.LoadStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Updates delivers status changes. It holds at most one pending value; a
// newer status replaces an unread older one.
func (e *Engine) Updates() <-chan types.LoadStatus {
	return e.updates
}

// Root is the directory of the most recent Load
func (e *Engine) Root() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.root
}

// Reload starts a fresh load of the current root
func (e *Engine) Reload(ctx context.Context) (*LoadHandle, error) {
	root := e.Root()
	if root == "" {
		return nil, fmt.Errorf("nothing to reload: %w", types.ErrDataNotFound)
	}
	return e.Load(ctx, root)
}

// Close cancels any running load. Queries keep answering from the last
// published dataset.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	if e.active != nil {
		e.active.Cancel()
	}
}
