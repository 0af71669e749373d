package types

import (
	"fmt"
	"strings"
	"time"
)

// RangeKind identifies a time range selector
type RangeKind string

const (
	RangeAll        RangeKind = "all"
	RangeLast30Days RangeKind = "30d"
	RangeLast7Days  RangeKind = "7d"
	RangeCustom     RangeKind = "custom"
)

const day = 24 * time.Hour

// TimeRange selects which entries a snapshot covers.
//
// Relative ranges resolve against the query time T to the closed interval
// [T - N*24h, T]. Custom ranges cover whole calendar days From..To in the
// day-bucket location, both inclusive. A zero From or To leaves that side open.
type TimeRange struct {
	Kind RangeKind `json:"kind"`
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

var (
	AllTime    = TimeRange{Kind: RangeAll}
	Last30Days = TimeRange{Kind: RangeLast30Days}
	Last7Days  = TimeRange{Kind: RangeLast7Days}
)

// PresetRanges lists the selectors offered by the shell, in cycling order
var PresetRanges = []TimeRange{AllTime, Last30Days, Last7Days}

func CustomRange(from, to time.Time) TimeRange {
	return TimeRange{Kind: RangeCustom, From: from, To: to}
}

// ParseTimeRange accepts "all", "30d" or "7d" (and a few spellings of them)
func ParseTimeRange(s string) (TimeRange, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "all-time", "alltime":
		return AllTime, nil
	case "30d", "30", "last-30-days", "month":
		return Last30Days, nil
	case "7d", "7", "last-7-days", "week":
		return Last7Days, nil
	}
	return TimeRange{}, fmt.Errorf("%w: %q (use all, 30d or 7d)", ErrInvalidTimeRange, s)
}

// ParseDateRange builds a custom range from since/until dates in YYYY-MM-DD or
// YYYYMMDD form. Either side may be empty.
func ParseDateRange(since, until string, loc *time.Location) (TimeRange, error) {
	if loc == nil {
		loc = time.Local
	}
	from, err := parseDate(since, loc)
	if err != nil {
		return TimeRange{}, err
	}
	to, err := parseDate(until, loc)
	if err != nil {
		return TimeRange{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return TimeRange{}, fmt.Errorf("%w: until %s is before since %s", ErrInvalidTimeRange, until, since)
	}
	return CustomRange(from, to), nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	layout := "2006-01-02"
	if len(s) == 8 && !strings.Contains(s, "-") {
		layout = "20060102"
	}
	t, err := time.ParseInLocation(layout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, use YYYY-MM-DD or YYYYMMDD", ErrInvalidTimeRange, s)
	}
	return t, nil
}

// Days returns the window length of a relative range, 0 otherwise
func (tr TimeRange) Days() int {
	switch tr.Kind {
	case RangeLast30Days:
		return 30
	case RangeLast7Days:
		return 7
	}
	return 0
}

func (tr TimeRange) Label() string {
	switch tr.Kind {
	case RangeLast30Days:
		return "30 Days"
	case RangeLast7Days:
		return "7 Days"
	case RangeCustom:
		from, to := "…", "…"
		if !tr.From.IsZero() {
			from = tr.From.Format("2006-01-02")
		}
		if !tr.To.IsZero() {
			to = tr.To.Format("2006-01-02")
		}
		return from + " – " + to
	}
	return "All Time"
}

func (tr TimeRange) String() string {
	if tr.Kind == RangeCustom {
		return string(tr.Kind) + ":" + tr.Label()
	}
	if tr.Kind == "" {
		return string(RangeAll)
	}
	return string(tr.Kind)
}

// Next cycles through PresetRanges
func (tr TimeRange) Next() TimeRange {
	for i, p := range PresetRanges {
		if p.Kind == tr.Kind {
			return PresetRanges[(i+1)%len(PresetRanges)]
		}
	}
	return PresetRanges[0]
}

// Window is a resolved closed interval. A zero bound is unbounded.
type Window struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}

func (w Window) Unbounded() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Key identifies the window for caching
func (w Window) Key() string {
	return fmt.Sprintf("%d:%d", unixNanoOrZero(w.Start), unixNanoOrZero(w.End))
}

func unixNanoOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// Resolve turns the selector into concrete bounds as of now
func (tr TimeRange) Resolve(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	switch tr.Kind {
	case RangeLast30Days, RangeLast7Days:
		return Window{
			Start: now.Add(-time.Duration(tr.Days()) * day),
			End:   now,
		}
	case RangeCustom:
		var w Window
		if !tr.From.IsZero() {
			f := tr.From.In(loc)
			w.Start = time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, loc)
		}
		if !tr.To.IsZero() {
			t := tr.To.In(loc)
			w.End = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		return w
	}
	return Window{}
}
