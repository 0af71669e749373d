package types

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Usage is the common bucket shape shared by every aggregate dimension
type Usage struct {
	Cost     decimal.Decimal `json:"cost"`
	Tokens   TokenCounts     `json:"tokens"`
	Entries  int             `json:"entries"`
	Unpriced int             `json:"unpriced_entries,omitempty"`
}

// Add folds one priced entry into the bucket
func (u *Usage) Add(e PricedEntry) {
	u.Cost = u.Cost.Add(e.Cost)
	u.Tokens = u.Tokens.Add(e.Tokens)
	u.Entries++
	if e.Unpriced {
		u.Unpriced++
	}
}

type ModelUsage struct {
	Model       string `json:"model"`
	DisplayName string `json:"display_name"`
	Usage
}

type ProjectUsage struct {
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Sessions  int       `json:"sessions"`
	LastUsed  time.Time `json:"last_used"`
	Usage
}

// DayUsage is one calendar day in the configured location
type DayUsage struct {
	Date   string   `json:"date"` // YYYY-MM-DD
	Models []string `json:"models"`
	Usage
}

type SessionUsage struct {
	SessionID string    `json:"session_id"`
	ProjectID string    `json:"project_id"`
	ModelID   string    `json:"model"`
	Models    []string  `json:"models"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Usage
}

func (s SessionUsage) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Phase names the loading phase a snapshot was computed from
type Phase string

const (
	PhaseNone Phase = ""
	PhaseFast Phase = "fast"
	PhaseFull Phase = "full"
)

// AggregateSnapshot is an immutable set of aggregates for one time range.
// Consumers must not mutate it.
type AggregateSnapshot struct {
	TimeRange   TimeRange `json:"time_range"`
	Window      Window    `json:"window"`
	Phase       Phase     `json:"phase,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`

	ByModel   map[string]ModelUsage   `json:"by_model"`
	ByProject map[string]ProjectUsage `json:"by_project"`
	ByDay     []DayUsage              `json:"by_day"`
	BySession map[string]SessionUsage `json:"by_session"`

	Total   Usage `json:"total"`
	Defects int   `json:"defects,omitempty"`
}

// EmptySnapshot returns a snapshot with no data for the given range
func EmptySnapshot(tr TimeRange, w Window) *AggregateSnapshot {
	return &AggregateSnapshot{
		TimeRange: tr,
		Window:    w,
		ByModel:   map[string]ModelUsage{},
		ByProject: map[string]ProjectUsage{},
		ByDay:     []DayUsage{},
		BySession: map[string]SessionUsage{},
		Total:     Usage{Cost: decimal.Zero},
	}
}

func (s *AggregateSnapshot) IsEmpty() bool {
	return s == nil || s.Total.Entries == 0
}

// ActiveDays counts the days with at least one entry
func (s *AggregateSnapshot) ActiveDays() int {
	if s == nil {
		return 0
	}
	return len(s.ByDay)
}

// AvgCostPerSession is zero when there are no sessions
func (s *AggregateSnapshot) AvgCostPerSession() decimal.Decimal {
	if s == nil || len(s.BySession) == 0 {
		return decimal.Zero
	}
	return s.Total.Cost.Div(decimal.NewFromInt(int64(len(s.BySession))))
}

// AvgDailyCost averages over active days only, zero when there are none
func (s *AggregateSnapshot) AvgDailyCost() decimal.Decimal {
	days := s.ActiveDays()
	if days == 0 {
		return decimal.Zero
	}
	return s.Total.Cost.Div(decimal.NewFromInt(int64(days)))
}

// Models returns model buckets ordered by cost descending, then name
func (s *AggregateSnapshot) Models() []ModelUsage {
	out := make([]ModelUsage, 0, len(s.ByModel))
	for _, m := range s.ByModel {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Cost.Cmp(out[j].Cost); c != 0 {
			return c > 0
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// Projects returns project buckets ordered by cost descending, then id
func (s *AggregateSnapshot) Projects() []ProjectUsage {
	out := make([]ProjectUsage, 0, len(s.ByProject))
	for _, p := range s.ByProject {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Cost.Cmp(out[j].Cost); c != 0 {
			return c > 0
		}
		return out[i].ProjectID < out[j].ProjectID
	})
	return out
}

// Sessions returns sessions most recent first
func (s *AggregateSnapshot) Sessions() []SessionUsage {
	out := make([]SessionUsage, 0, len(s.BySession))
	for _, ss := range s.BySession {
		out = append(out, ss)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].End.Equal(out[j].End) {
			return out[i].End.After(out[j].End)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

// Day looks up a single day bucket
func (s *AggregateSnapshot) Day(date string) (DayUsage, bool) {
	i := sort.Search(len(s.ByDay), func(i int) bool { return s.ByDay[i].Date >= date })
	if i < len(s.ByDay) && s.ByDay[i].Date == date {
		return s.ByDay[i], true
	}
	return DayUsage{}, false
}
