package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/sdpower/ccdash/internal/types"
)

const topModels = 5

// SummaryFormatter renders the totals panel and load status line shared by
// the summary command and the live monitor
type SummaryFormatter struct {
	noColor bool
	loc     *time.Location

	title lipgloss.Style
	label lipgloss.Style
	value lipgloss.Style
	warn  lipgloss.Style
	muted lipgloss.Style
	panel lipgloss.Style
}

func NewSummaryFormatter(noColor bool, loc *time.Location) *SummaryFormatter {
	if loc == nil {
		loc = time.Local
	}
	f := &SummaryFormatter{
		noColor: noColor,
		loc:     loc,
		title:   lipgloss.NewStyle(),
		label:   lipgloss.NewStyle().Width(16),
		value:   lipgloss.NewStyle(),
		warn:    lipgloss.NewStyle(),
		muted:   lipgloss.NewStyle(),
		panel:   lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder()),
	}
	if !noColor {
		f.title = f.title.Bold(true).Foreground(lipgloss.Color("205"))
		f.label = f.label.Foreground(lipgloss.Color("36"))
		f.value = f.value.Bold(true)
		f.warn = f.warn.Foreground(lipgloss.Color("214"))
		f.muted = f.muted.Foreground(lipgloss.Color("240"))
		f.panel = f.panel.BorderForeground(lipgloss.Color("240"))
	}
	return f
}

func (f *SummaryFormatter) Format(snap *types.AggregateSnapshot, status types.LoadStatus) string {
	var output strings.Builder
	output.WriteString(f.title.Render(fmt.Sprintf("Usage Summary - %s", snap.TimeRange.Label())))
	output.WriteString("\n\n")
	output.WriteString(f.panel.Render(f.Body(snap)))
	output.WriteString("\n")
	if line := f.StatusLine(status); line != "" {
		output.WriteString(line)
		output.WriteString("\n")
	}
	return output.String()
}

// Body is the totals block plus the most expensive models
func (f *SummaryFormatter) Body(snap *types.AggregateSnapshot) string {
	if snap.IsEmpty() {
		return "No usage data found for the specified period."
	}

	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(f.label.Render(label))
		b.WriteString(f.value.Render(value))
		b.WriteString("\n")
	}

	row("Period", f.period(snap))
	row("Total Cost", formatCost(snap.Total.Cost))
	row("Total Tokens", formatNumberWithCommas(snap.Total.Tokens.Total()))
	row("  Input", formatNumberWithCommas(snap.Total.Tokens.Input))
	row("  Output", formatNumberWithCommas(snap.Total.Tokens.Output))
	row("  Cache Create", formatNumberWithCommas(snap.Total.Tokens.CacheWrite))
	row("  Cache Read", formatNumberWithCommas(snap.Total.Tokens.CacheRead))
	row("Requests", formatNumberWithCommas(int64(snap.Total.Entries)))
	row("Projects", fmt.Sprintf("%d", len(snap.ByProject)))
	row("Sessions", fmt.Sprintf("%d", len(snap.BySession)))
	row("Avg / Session", formatCost(snap.AvgCostPerSession()))
	if days := snap.ActiveDays(); days > 0 {
		row("Active Days", fmt.Sprintf("%d", days))
		row("Avg / Day", formatCost(snap.AvgDailyCost()))
	}

	models := snap.Models()
	if len(models) > 0 {
		b.WriteString("\n")
		b.WriteString(f.title.Render("Top Models"))
		b.WriteString("\n")
		for i, m := range models {
			if i == topModels {
				b.WriteString(f.muted.Render(fmt.Sprintf("  … %d more", len(models)-topModels)))
				b.WriteString("\n")
				break
			}
			name := m.DisplayName
			if m.Unpriced > 0 {
				name = f.warn.Render(name + " (unpriced)")
			}
			row("  "+ShortenModelName(m.Model), fmt.Sprintf("%s  %s  %s", formatCost(m.Cost), share(m.Cost, snap.Total.Cost), name))
		}
	}

	if snap.Phase == types.PhaseFast {
		b.WriteString("\n")
		b.WriteString(f.muted.Render("Recent files only; full history still loading."))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (f *SummaryFormatter) period(snap *types.AggregateSnapshot) string {
	if snap.Window.Unbounded() {
		if len(snap.ByDay) > 0 {
			return snap.ByDay[0].Date + " to " + snap.ByDay[len(snap.ByDay)-1].Date
		}
		return snap.TimeRange.Label()
	}
	from, to := "…", "…"
	if !snap.Window.Start.IsZero() {
		from = snap.Window.Start.In(f.loc).Format("2006-01-02 15:04")
	}
	if !snap.Window.End.IsZero() {
		to = snap.Window.End.In(f.loc).Format("2006-01-02 15:04")
	}
	return from + " to " + to
}

// StatusLine describes load progress and the problems counted so far
func (f *SummaryFormatter) StatusLine(status types.LoadStatus) string {
	var parts []string
	switch status.State {
	case types.StateIdle:
		return ""
	case types.StateFastPhaseRunning:
		parts = append(parts, "Loading recent files…")
	case types.StateFastPhaseDone, types.StateFullPhaseRunning:
		parts = append(parts, fmt.Sprintf("Recent files loaded in %s; loading full history…", status.FastDuration.Round(time.Millisecond)))
	case types.StateFullPhaseDone:
		parts = append(parts, fmt.Sprintf("Full history loaded in %s", status.FullDuration.Round(time.Millisecond)))
	case types.StateFailed:
		msg := "Load failed: " + status.Reason
		if status.BackgroundError() {
			msg = "Full history failed, showing recent files: " + status.Reason
		}
		return f.warn.Render(msg)
	}

	errs := status.Errors()
	parts = append(parts, fmt.Sprintf("%d files", errs.FilesScanned))
	if errs.Duplicates > 0 {
		parts = append(parts, fmt.Sprintf("%d duplicates", errs.Duplicates))
	}
	line := f.muted.Render(strings.Join(parts, " · "))

	var problems []string
	if errs.FilesSkipped > 0 {
		problems = append(problems, fmt.Sprintf("%d files skipped", errs.FilesSkipped))
	}
	if errs.ParseErrors > 0 {
		problems = append(problems, fmt.Sprintf("%d bad records", errs.ParseErrors))
	}
	if errs.PricingGaps > 0 {
		problems = append(problems, fmt.Sprintf("%d unpriced (%s)", errs.PricingGaps, strings.Join(errs.UnpricedModels, ", ")))
	}
	if errs.Defects > 0 {
		problems = append(problems, fmt.Sprintf("%d defects", errs.Defects))
	}
	if len(problems) > 0 {
		line += f.muted.Render(" · ") + f.warn.Render(strings.Join(problems, " · "))
	}
	return line
}
