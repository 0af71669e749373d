package output

import (
	"encoding/csv"
	"encoding/json"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdpower/ccdash/internal/aggregator"
	"github.com/sdpower/ccdash/internal/calculator"
	"github.com/sdpower/ccdash/internal/pricing"
	"github.com/sdpower/ccdash/internal/types"
)

func sampleSnapshot(t *testing.T) *types.AggregateSnapshot {
	t.Helper()
	calc := calculator.New(pricing.Default())
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	tokens := types.TokenCounts{Input: 1000, Output: 500, CacheWrite: 200, CacheRead: 100}

	entries := []types.UsageEntry{
		{Timestamp: base, ProjectID: "/home/u/github/app", SessionID: "s1", ModelID: "claude-sonnet-4-20250514", Tokens: tokens},
		{Timestamp: base.Add(time.Hour), ProjectID: "/home/u/github/app", SessionID: "s1", ModelID: "claude-opus-4-20250514", Tokens: tokens},
		{Timestamp: base.Add(26 * time.Hour), ProjectID: "/home/u/work/tool", SessionID: "s2", ModelID: "mystery-model", Tokens: tokens},
	}
	priced := make([]types.PricedEntry, 0, len(entries))
	for _, e := range entries {
		priced = append(priced, calc.Price(e))
	}
	return aggregator.Build(slices.Values(priced), types.Window{}, time.UTC, aggregator.Meta{
		TimeRange:   types.AllTime,
		Phase:       types.PhaseFull,
		GeneratedAt: base.Add(48 * time.Hour),
	})
}

func doneStatus() types.LoadStatus {
	return types.LoadStatus{
		State:        types.StateFullPhaseDone,
		Published:    types.PhaseFull,
		FullErrors:   types.ErrorSummary{FilesScanned: 2, Entries: 3, ParseErrors: 1, PricingGaps: 1, UnpricedModels: []string{"mystery-model"}},
		FullDuration: 1500 * time.Millisecond,
	}
}

func newPlain(format Format) *Formatter {
	return NewFormatter(FormatterOptions{Format: format, NoColor: true, Location: time.UTC})
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "table": FormatTable, "JSON": FormatJSON, "csv": FormatCSV} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestFormatJSON(t *testing.T) {
	snap := sampleSnapshot(t)

	out, err := newPlain(FormatJSON).Format(ReportModels, snap, doneStatus())
	require.NoError(t, err)

	var got struct {
		Range  string `json:"range"`
		Phase  string `json:"phase"`
		Models []struct {
			Model string `json:"model"`
			Cost  string `json:"cost"`
		} `json:"models"`
		Total struct {
			Entries int `json:"entries"`
		} `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "all", got.Range)
	assert.Equal(t, "full", got.Phase)
	require.Len(t, got.Models, 3)
	assert.Equal(t, "claude-opus-4-20250514", got.Models[0].Model)
	assert.Equal(t, 3, got.Total.Entries)

	out, err = newPlain(FormatJSON).Format(ReportSummary, snap, doneStatus())
	require.NoError(t, err)
	var summary map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Contains(t, summary, "snapshot")
	assert.Contains(t, string(summary["status"]), `"FullPhaseDone"`)

	var avg struct {
		ActiveDays        int    `json:"active_days"`
		AvgCostPerSession string `json:"avg_cost_per_session"`
		AvgDailyCost      string `json:"avg_daily_cost"`
	}
	require.NoError(t, json.Unmarshal(summary["averages"], &avg))
	assert.Equal(t, 2, avg.ActiveDays)
	assert.Equal(t, "0.03384", avg.AvgCostPerSession)
	assert.Equal(t, "0.03384", avg.AvgDailyCost)
}

func TestFormatCSV(t *testing.T) {
	snap := sampleSnapshot(t)

	tests := []struct {
		report Report
		lead   string
		rows   int
	}{
		{ReportSummary, "range", 2},
		{ReportModels, "model", 4},
		{ReportProjects, "project_path", 3},
		{ReportDaily, "date", 3},
		{ReportSessions, "session_id", 3},
	}
	for _, tt := range tests {
		t.Run(string(tt.report), func(t *testing.T) {
			out, err := newPlain(FormatCSV).Format(tt.report, snap, doneStatus())
			require.NoError(t, err)
			records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
			require.NoError(t, err)
			require.Len(t, records, tt.rows)
			assert.Equal(t, tt.lead, records[0][0])
			assert.Contains(t, records[0], "cost_usd")
		})
	}

	out, err := newPlain(FormatCSV).Format(ReportDaily, snap, doneStatus())
	require.NoError(t, err)
	assert.Contains(t, out, "2025-06-01,claude-opus-4-20250514;claude-sonnet-4-20250514,")
}

func TestFormatTables(t *testing.T) {
	snap := sampleSnapshot(t)
	f := newPlain(FormatTable)

	models, err := f.Format(ReportModels, snap, doneStatus())
	require.NoError(t, err)
	assert.Contains(t, models, "By Model (All Time)")
	assert.Contains(t, models, "Opus 4")
	assert.Contains(t, models, "mystery-model *")
	assert.Contains(t, models, "no pricing for this model")

	projects, err := f.Format(ReportProjects, snap, doneStatus())
	require.NoError(t, err)
	assert.Contains(t, projects, "app")
	assert.Contains(t, projects, "tool")

	daily, err := f.Format(ReportDaily, snap, doneStatus())
	require.NoError(t, err)
	assert.Contains(t, daily, "06-01")
	assert.Contains(t, daily, "06-02")
	assert.Contains(t, daily, "Sonnet-4")
	assert.NotContains(t, daily, "\033[")

	sessions, err := f.Format(ReportSessions, snap, doneStatus())
	require.NoError(t, err)
	assert.Contains(t, sessions, "s1")
	assert.Contains(t, sessions, "Total")
}

func TestFormatSummary(t *testing.T) {
	out, err := newPlain(FormatTable).Format(ReportSummary, sampleSnapshot(t), doneStatus())
	require.NoError(t, err)
	assert.Contains(t, out, "Usage Summary - All Time")
	assert.Contains(t, out, "2025-06-01 to 2025-06-02")
	assert.Contains(t, out, "Top Models")
	assert.Regexp(t, `Avg / Session\s+\$0\.03`, out)
	assert.Regexp(t, `Avg / Day\s+\$0\.03`, out)
	assert.Contains(t, out, "Full history loaded in 1.5s")
	assert.Contains(t, out, "1 bad records")
	assert.Contains(t, out, "1 unpriced (mystery-model)")
}

func TestFormatEmpty(t *testing.T) {
	empty := types.EmptySnapshot(types.Last7Days, types.Window{})
	for _, r := range []Report{ReportModels, ReportProjects, ReportDaily, ReportSessions, ReportSummary} {
		out, err := newPlain(FormatTable).Format(r, empty, types.LoadStatus{})
		require.NoError(t, err)
		assert.Contains(t, out, "No usage data found for the specified period.", r)
	}
}

func TestStatusLine(t *testing.T) {
	f := NewSummaryFormatter(true, time.UTC)
	assert.Empty(t, f.StatusLine(types.LoadStatus{}))
	assert.Equal(t, "Loading recent files… · 0 files", f.StatusLine(types.LoadStatus{State: types.StateFastPhaseRunning}))

	bg := f.StatusLine(types.LoadStatus{State: types.StateFailed, Published: types.PhaseFast, Reason: "permission denied"})
	assert.Equal(t, "Full history failed, showing recent files: permission denied", bg)
	assert.Equal(t, "Load failed: boom", f.StatusLine(types.LoadStatus{State: types.StateFailed, Reason: "boom"}))
}
