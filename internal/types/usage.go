package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenCounts holds the four billable token classes of one entry or bucket
type TokenCounts struct {
	Input      int64 `json:"input_tokens"`
	Output     int64 `json:"output_tokens"`
	CacheWrite int64 `json:"cache_creation_input_tokens"`
	CacheRead  int64 `json:"cache_read_input_tokens"`
}

// Total returns the sum of all four token classes
func (tc TokenCounts) Total() int64 {
	return tc.Input + tc.Output + tc.CacheWrite + tc.CacheRead
}

// IsZero reports whether every class is zero. Such entries are noise.
func (tc TokenCounts) IsZero() bool {
	return tc.Input == 0 && tc.Output == 0 && tc.CacheWrite == 0 && tc.CacheRead == 0
}

func (tc TokenCounts) HasNegative() bool {
	return tc.Input < 0 || tc.Output < 0 || tc.CacheWrite < 0 || tc.CacheRead < 0
}

func (tc TokenCounts) Add(other TokenCounts) TokenCounts {
	return TokenCounts{
		Input:      tc.Input + other.Input,
		Output:     tc.Output + other.Output,
		CacheWrite: tc.CacheWrite + other.CacheWrite,
		CacheRead:  tc.CacheRead + other.CacheRead,
	}
}

// UsageEntry is one billable request/response exchange read from a log file
type UsageEntry struct {
	Timestamp time.Time   `json:"timestamp"`
	ProjectID string      `json:"project_id"`
	SessionID string      `json:"session_id"`
	ModelID   string      `json:"model"`
	Tokens    TokenCounts `json:"tokens"`
	DedupKey  string      `json:"dedup_key"`

	// RecordedCost is the costUSD value written by the tool itself, if any
	RecordedCost *decimal.Decimal `json:"recorded_cost,omitempty"`

	SourcePath string `json:"source_path,omitempty"`
	Line       int    `json:"line,omitempty"`
}

// CostSource tells where a PricedEntry's cost came from
type CostSource string

const (
	CostComputed CostSource = "computed"
	CostRecorded CostSource = "recorded"
	CostUnpriced CostSource = "unpriced"
)

// PricedEntry is a UsageEntry with its monetary cost attached
type PricedEntry struct {
	UsageEntry
	Cost       decimal.Decimal `json:"cost"`
	CostSource CostSource      `json:"cost_source"`
	Unpriced   bool            `json:"unpriced,omitempty"`
}
