package types

import (
	"sort"
	"time"
)

type LoadState int

const (
	StateIdle LoadState = iota
	StateFastPhaseRunning
	StateFastPhaseDone
	StateFullPhaseRunning
	StateFullPhaseDone
	StateFailed
)

func (s LoadState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateFastPhaseRunning:
		return "FastPhaseRunning"
	case StateFastPhaseDone:
		return "FastPhaseDone"
	case StateFullPhaseRunning:
		return "FullPhaseRunning"
	case StateFullPhaseDone:
		return "FullPhaseDone"
	case StateFailed:
		return "Failed"
	}
	return "Unknown"
}

func (s LoadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transitions happen without a new load
func (s LoadState) Terminal() bool {
	return s == StateIdle || s == StateFullPhaseDone || s == StateFailed
}

// ErrorSummary counts the non-fatal problems met during one phase
type ErrorSummary struct {
	FilesScanned   int      `json:"files_scanned"`
	FilesSkipped   int      `json:"files_skipped"`
	ParseErrors    int      `json:"parse_errors"`
	PricingGaps    int      `json:"pricing_gaps"`
	Defects        int      `json:"defects"`
	Duplicates     int      `json:"duplicates"`
	Filtered       int      `json:"filtered"`
	Entries        int      `json:"entries"`
	UnpricedModels []string `json:"unpriced_models,omitempty"`
}

// Merge adds other into s, keeping UnpricedModels sorted and unique
func (s *ErrorSummary) Merge(other ErrorSummary) {
	s.FilesScanned += other.FilesScanned
	s.FilesSkipped += other.FilesSkipped
	s.ParseErrors += other.ParseErrors
	s.PricingGaps += other.PricingGaps
	s.Defects += other.Defects
	s.Duplicates += other.Duplicates
	s.Filtered += other.Filtered
	s.Entries += other.Entries
	if len(other.UnpricedModels) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(s.UnpricedModels))
	for _, m := range s.UnpricedModels {
		seen[m] = struct{}{}
	}
	for _, m := range other.UnpricedModels {
		if _, ok := seen[m]; !ok {
			seen[m] = struct{}{}
			s.UnpricedModels = append(s.UnpricedModels, m)
		}
	}
	sort.Strings(s.UnpricedModels)
}

// HasProblems reports whether anything was skipped or flagged
func (s ErrorSummary) HasProblems() bool {
	return s.FilesSkipped > 0 || s.ParseErrors > 0 || s.PricingGaps > 0 || s.Defects > 0
}

// LoadStatus is the progress report of the current load
type LoadStatus struct {
	State     LoadState `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Root      string    `json:"root,omitempty"`
	LoadID    string    `json:"load_id,omitempty"`
	Published Phase     `json:"published,omitempty"`

	FastErrors ErrorSummary `json:"fast_errors"`
	FullErrors ErrorSummary `json:"full_errors"`

	FastDuration time.Duration `json:"fast_duration"`
	FullDuration time.Duration `json:"full_duration"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// BackgroundError reports whether the full sweep failed after the fast
// phase had already published
func (s LoadStatus) BackgroundError() bool {
	return s.State == StateFailed && s.Published == PhaseFast
}

// Errors returns the summary of the dataset currently published
func (s LoadStatus) Errors() ErrorSummary {
	if s.Published == PhaseFull {
		return s.FullErrors
	}
	return s.FastErrors
}
