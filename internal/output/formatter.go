package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sdpower/ccdash/internal/aggregator"
	"github.com/sdpower/ccdash/internal/types"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (use table, json or csv)", s)
}

// Report selects which dimension of a snapshot is printed
type Report string

const (
	ReportSummary  Report = "summary"
	ReportModels   Report = "models"
	ReportProjects Report = "projects"
	ReportDaily    Report = "daily"
	ReportSessions Report = "sessions"
)

type FormatterOptions struct {
	Format   Format
	NoColor  bool
	Location *time.Location
}

type Formatter struct {
	options FormatterOptions
	tables  *TableWriterFormatter
	summary *SummaryFormatter
}

func NewFormatter(opts FormatterOptions) *Formatter {
	if opts.Format == "" {
		opts.Format = FormatTable
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	tables := NewTableWriterFormatter(opts.NoColor)
	tables.SetTimezone(opts.Location)
	return &Formatter{
		options: opts,
		tables:  tables,
		summary: NewSummaryFormatter(opts.NoColor, opts.Location),
	}
}

func (f *Formatter) Format(report Report, snap *types.AggregateSnapshot, status types.LoadStatus) (string, error) {
	switch f.options.Format {
	case FormatJSON:
		return f.FormatJSON(jsonReport(report, snap, status))
	case FormatCSV:
		return f.FormatCSV(f.csvRows(report, snap))
	}

	switch report {
	case ReportModels:
		return f.tables.FormatModels(snap), nil
	case ReportProjects:
		return f.tables.FormatProjects(snap), nil
	case ReportDaily:
		return f.tables.FormatDaily(snap), nil
	case ReportSessions:
		return f.tables.FormatSessions(snap), nil
	}
	return f.summary.Format(snap, status), nil
}

func (f *Formatter) FormatJSON(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData) + "\n", nil
}

func (f *Formatter) FormatCSV(rows [][]string) (string, error) {
	var output strings.Builder
	w := csv.NewWriter(&output)
	if err := w.WriteAll(rows); err != nil {
		return "", err
	}
	return output.String(), nil
}

type reportMeta struct {
	Range       string       `json:"range"`
	Label       string       `json:"label"`
	Window      types.Window `json:"window"`
	Phase       types.Phase  `json:"phase"`
	GeneratedAt time.Time    `json:"generated_at"`
}

type listReport struct {
	reportMeta
	Models   []types.ModelUsage   `json:"models,omitempty"`
	Projects []types.ProjectUsage `json:"projects,omitempty"`
	Daily    []types.DayUsage     `json:"daily,omitempty"`
	Sessions []types.SessionUsage `json:"sessions,omitempty"`
	Total    types.Usage          `json:"total"`
}

type averages struct {
	ActiveDays        int             `json:"active_days"`
	AvgCostPerSession decimal.Decimal `json:"avg_cost_per_session"`
	AvgDailyCost      decimal.Decimal `json:"avg_daily_cost"`
}

type summaryReport struct {
	Snapshot *types.AggregateSnapshot `json:"snapshot"`
	Averages averages                 `json:"averages"`
	Status   types.LoadStatus         `json:"status"`
}

func jsonReport(report Report, snap *types.AggregateSnapshot, status types.LoadStatus) any {
	if report == ReportSummary || report == "" {
		return summaryReport{
			Snapshot: snap,
			Averages: averages{
				ActiveDays:        snap.ActiveDays(),
				AvgCostPerSession: snap.AvgCostPerSession(),
				AvgDailyCost:      snap.AvgDailyCost(),
			},
			Status: status,
		}
	}

	r := listReport{
		reportMeta: reportMeta{
			Range:       snap.TimeRange.String(),
			Label:       snap.TimeRange.Label(),
			Window:      snap.Window,
			Phase:       snap.Phase,
			GeneratedAt: snap.GeneratedAt,
		},
		Total: snap.Total,
	}
	switch report {
	case ReportModels:
		r.Models = snap.Models()
	case ReportProjects:
		r.Projects = snap.Projects()
	case ReportDaily:
		r.Daily = snap.ByDay
	case ReportSessions:
		r.Sessions = snap.Sessions()
	}
	return r
}

var tokenColumns = []string{"input_tokens", "output_tokens", "cache_creation_tokens", "cache_read_tokens", "total_tokens", "cost_usd"}

func tokenValues(u types.Usage) []string {
	return []string{
		strconv.FormatInt(u.Tokens.Input, 10),
		strconv.FormatInt(u.Tokens.Output, 10),
		strconv.FormatInt(u.Tokens.CacheWrite, 10),
		strconv.FormatInt(u.Tokens.CacheRead, 10),
		strconv.FormatInt(u.Tokens.Total(), 10),
		u.Cost.String(),
	}
}

func (f *Formatter) csvRows(report Report, snap *types.AggregateSnapshot) [][]string {
	header := func(lead ...string) []string {
		return append(append(lead, tokenColumns...), "entries", "unpriced_entries")
	}
	row := func(u types.Usage, lead ...string) []string {
		return append(append(lead, tokenValues(u)...), strconv.Itoa(u.Entries), strconv.Itoa(u.Unpriced))
	}
	ts := func(t time.Time) string { return t.In(f.options.Location).Format(time.RFC3339) }

	var rows [][]string
	switch report {
	case ReportModels:
		rows = append(rows, header("model", "display_name"))
		for _, m := range snap.Models() {
			rows = append(rows, row(m.Usage, m.Model, m.DisplayName))
		}
	case ReportProjects:
		rows = append(rows, header("project_path", "name", "sessions", "last_used"))
		for _, p := range snap.Projects() {
			rows = append(rows, row(p.Usage, p.ProjectID, p.Name, strconv.Itoa(p.Sessions), ts(p.LastUsed)))
		}
	case ReportDaily:
		rows = append(rows, header("date", "models"))
		for _, d := range snap.ByDay {
			rows = append(rows, row(d.Usage, d.Date, strings.Join(d.Models, ";")))
		}
	case ReportSessions:
		rows = append(rows, header("session_id", "project_path", "project", "models", "start_time", "end_time", "duration_seconds"))
		for _, s := range snap.Sessions() {
			rows = append(rows, row(s.Usage, s.SessionID, s.ProjectID, aggregator.ProjectName(s.ProjectID),
				strings.Join(s.Models, ";"), ts(s.Start), ts(s.End), strconv.FormatFloat(s.Duration().Seconds(), 'f', 0, 64)))
		}
	default:
		rows = append(rows, header("range", "phase", "models", "projects", "sessions"))
		rows = append(rows, row(snap.Total, snap.TimeRange.String(), string(snap.Phase),
			strconv.Itoa(len(snap.ByModel)), strconv.Itoa(len(snap.ByProject)), strconv.Itoa(len(snap.BySession))))
	}
	return rows
}
