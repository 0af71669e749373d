package aggregator

import (
	"iter"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/sdpower/ccdash/internal/pricing"
	"github.com/sdpower/ccdash/internal/types"
)

// Outcome tells what Add did with an entry
type Outcome int

const (
	Added Outcome = iota
	OutOfRange
	Filtered
	Defect
)

type set map[string]struct{}

func (s set) add(k string) { s[k] = struct{}{} }

func (s set) sorted() []string {
	out := lo.Keys(s)
	sort.Strings(out)
	return out
}

type projectAcc struct {
	usage    types.Usage
	sessions set
	lastUsed time.Time
}

type dayAcc struct {
	usage  types.Usage
	models set
}

type sessionAcc struct {
	usage types.Usage
	// project and model of the earliest entry; ties broken lexicographically
	project string
	model   string
	models  set
	start   time.Time
	end     time.Time
}

// earlier reports whether (ts, project, model) sorts before the session's
// current representative entry
func (s *sessionAcc) earlier(ts time.Time, project, model string) bool {
	if !ts.Equal(s.start) {
		return ts.Before(s.start)
	}
	if project != s.project {
		return project < s.project
	}
	return model < s.model
}

// Aggregator folds priced entries into per-model, per-project, per-day and
// per-session buckets. Sums are exact and commutative, so the result does
// not depend on the order entries arrive in. An Aggregator is not safe for
// concurrent use.
type Aggregator struct {
	window types.Window
	loc    *time.Location

	total    types.Usage
	models   map[string]*types.Usage
	projects map[string]*projectAcc
	days     map[string]*dayAcc
	sessions map[string]*sessionAcc

	defects    int
	filtered   int
	outOfRange int
}

func New(window types.Window, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{
		window:   window,
		loc:      loc,
		models:   make(map[string]*types.Usage),
		projects: make(map[string]*projectAcc),
		days:     make(map[string]*dayAcc),
		sessions: make(map[string]*sessionAcc),
	}
}

func (a *Aggregator) Add(e types.PricedEntry) Outcome {
	if !a.window.Contains(e.Timestamp) {
		a.outOfRange++
		return OutOfRange
	}
	if e.Tokens.HasNegative() || e.Cost.IsNegative() {
		a.defects++
		return Defect
	}
	if e.Tokens.IsZero() {
		a.filtered++
		return Filtered
	}

	a.total.Add(e)

	m := a.models[e.ModelID]
	if m == nil {
		m = &types.Usage{}
		a.models[e.ModelID] = m
	}
	m.Add(e)

	p := a.projects[e.ProjectID]
	if p == nil {
		p = &projectAcc{sessions: set{}}
		a.projects[e.ProjectID] = p
	}
	p.usage.Add(e)
	p.sessions.add(e.SessionID)
	if e.Timestamp.After(p.lastUsed) {
		p.lastUsed = e.Timestamp
	}

	date := e.Timestamp.In(a.loc).Format("2006-01-02")
	d := a.days[date]
	if d == nil {
		d = &dayAcc{models: set{}}
		a.days[date] = d
	}
	d.usage.Add(e)
	d.models.add(e.ModelID)

	s := a.sessions[e.SessionID]
	if s == nil {
		s = &sessionAcc{
			project: e.ProjectID,
			model:   e.ModelID,
			models:  set{},
			start:   e.Timestamp,
			end:     e.Timestamp,
		}
		a.sessions[e.SessionID] = s
	} else if s.earlier(e.Timestamp, e.ProjectID, e.ModelID) {
		s.project, s.model = e.ProjectID, e.ModelID
	}
	s.usage.Add(e)
	s.models.add(e.ModelID)
	if e.Timestamp.Before(s.start) {
		s.start = e.Timestamp
	}
	if e.Timestamp.After(s.end) {
		s.end = e.Timestamp
	}

	return Added
}

// AddAll folds a sequence and returns how many entries were added
func (a *Aggregator) AddAll(seq iter.Seq[types.PricedEntry]) int {
	n := 0
	for e := range seq {
		if a.Add(e) == Added {
			n++
		}
	}
	return n
}

func (a *Aggregator) Defects() int    { return a.defects }
func (a *Aggregator) Filtered() int   { return a.filtered }
func (a *Aggregator) OutOfRange() int { return a.outOfRange }

// Meta labels a snapshot
type Meta struct {
	TimeRange   types.TimeRange
	Phase       types.Phase
	GeneratedAt time.Time
}

// Snapshot materializes the current state. The result shares nothing with
// the aggregator.
func (a *Aggregator) Snapshot(meta Meta) *types.AggregateSnapshot {
	snap := types.EmptySnapshot(meta.TimeRange, a.window)
	snap.Phase = meta.Phase
	snap.GeneratedAt = meta.GeneratedAt
	snap.Total = a.total
	snap.Defects = a.defects

	for k, u := range a.models {
		snap.ByModel[k] = types.ModelUsage{Model: k, DisplayName: pricing.DisplayName(k), Usage: *u}
	}

	for k, p := range a.projects {
		snap.ByProject[k] = types.ProjectUsage{
			ProjectID: k,
			Name:      ProjectName(k),
			Sessions:  len(p.sessions),
			LastUsed:  p.lastUsed,
			Usage:     p.usage,
		}
	}

	dates := lo.Keys(a.days)
	sort.Strings(dates)
	snap.ByDay = make([]types.DayUsage, 0, len(dates))
	for _, date := range dates {
		d := a.days[date]
		snap.ByDay = append(snap.ByDay, types.DayUsage{Date: date, Models: d.models.sorted(), Usage: d.usage})
	}

	for k, s := range a.sessions {
		snap.BySession[k] = types.SessionUsage{
			SessionID: k,
			ProjectID: s.project,
			ModelID:   s.model,
			Models:    s.models.sorted(),
			Start:     s.start,
			End:       s.end,
			Usage:     s.usage,
		}
	}

	return snap
}

// Build aggregates entries in one pass
func Build(entries iter.Seq[types.PricedEntry], window types.Window, loc *time.Location, meta Meta) *types.AggregateSnapshot {
	a := New(window, loc)
	a.AddAll(entries)
	return a.Snapshot(meta)
}
