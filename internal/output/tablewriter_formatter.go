package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/shopspring/decimal"

	"github.com/sdpower/ccdash/internal/aggregator"
	"github.com/sdpower/ccdash/internal/pricing"
	"github.com/sdpower/ccdash/internal/types"
)

// TableWriterFormatter renders snapshot dimensions as bordered tables
type TableWriterFormatter struct {
	noColor  bool
	timezone *time.Location
}

func NewTableWriterFormatter(noColor bool) *TableWriterFormatter {
	return &TableWriterFormatter{
		noColor:  noColor,
		timezone: time.Local,
	}
}

func (f *TableWriterFormatter) SetTimezone(loc *time.Location) {
	if loc != nil {
		f.timezone = loc
	}
}

func newTable(buf *bytes.Buffer) *tablewriter.Table {
	return tablewriter.NewTable(buf,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.On}},
		})),
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignRight},
			},
		}),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
}

var tokenHeaders = []string{"Input\n", "Output\n", "Cache\nCreate", "Cache\nRead", "Total\nTokens", "Cost\n(USD)"}

func (f *TableWriterFormatter) tokenCells(u types.Usage) []string {
	return []string{
		formatLargeNumber(u.Tokens.Input),
		formatLargeNumber(u.Tokens.Output),
		formatLargeNumber(u.Tokens.CacheWrite),
		formatLargeNumber(u.Tokens.CacheRead),
		formatLargeNumber(u.Tokens.Total()),
		formatCost(u.Cost),
	}
}

func (f *TableWriterFormatter) FormatModels(snap *types.AggregateSnapshot) string {
	if snap.IsEmpty() {
		return f.formatEmptyReport("By Model", snap)
	}

	var buf bytes.Buffer
	table := newTable(&buf)
	table.Header(append([]string{"Model\n", "Entries\n"}, append(tokenHeaders, "Share\n")...))

	for _, m := range snap.Models() {
		name := m.DisplayName
		if m.Unpriced > 0 {
			name += " *"
		}
		row := append([]string{name, formatLargeNumber(int64(m.Entries))}, f.tokenCells(m.Usage)...)
		table.Append(append(row, share(m.Cost, snap.Total.Cost)))
	}

	table.Footer(append(append([]string{"Total", formatLargeNumber(int64(snap.Total.Entries))}, f.tokenCells(snap.Total)...), ""))
	table.Render()

	out := f.render("By Model", snap, buf.String())
	if snap.Total.Unpriced > 0 {
		out += "* no pricing for this model; counted at the fallback rate\n"
	}
	return out
}

func (f *TableWriterFormatter) FormatProjects(snap *types.AggregateSnapshot) string {
	if snap.IsEmpty() {
		return f.formatEmptyReport("By Project", snap)
	}

	var buf bytes.Buffer
	table := newTable(&buf)
	table.Header(append(append([]string{"Project\n", "Sessions\n"}, tokenHeaders...), "Last\nUsed"))

	sessions := 0
	for _, p := range snap.Projects() {
		sessions += p.Sessions
		row := append([]string{p.Name, formatLargeNumber(int64(p.Sessions))}, f.tokenCells(p.Usage)...)
		table.Append(append(row, p.LastUsed.In(f.timezone).Format("2006-01-02")))
	}

	table.Footer(append(append([]string{"Total", formatLargeNumber(int64(sessions))}, f.tokenCells(snap.Total)...), ""))
	table.Render()
	return f.render("By Project", snap, buf.String())
}

func (f *TableWriterFormatter) FormatDaily(snap *types.AggregateSnapshot) string {
	if snap.IsEmpty() {
		return f.formatEmptyReport("Daily", snap)
	}

	var buf bytes.Buffer
	table := newTable(&buf)
	table.Header(append([]string{"Date\n", "Models\n"}, tokenHeaders...))

	peak := decimal.Zero
	for _, d := range snap.ByDay {
		if d.Cost.GreaterThan(peak) {
			peak = d.Cost
		}
	}

	for _, d := range snap.ByDay {
		// YYYY\nMM-DD keeps the column narrow
		formattedDate := d.Date
		if parts := strings.Split(d.Date, "-"); len(parts) == 3 {
			formattedDate = fmt.Sprintf("%s\n%s-%s", parts[0], parts[1], parts[2])
		}

		cells := f.tokenCells(d.Usage)
		if !f.noColor && peak.IsPositive() {
			frac := d.Cost.Div(peak).InexactFloat64()
			cells[len(cells)-1] = lipgloss.NewStyle().Foreground(lipgloss.Color(HeatColor(frac))).Render(cells[len(cells)-1])
		}
		table.Append(append([]string{formattedDate, modelList(d.Models)}, cells...))
	}

	table.Footer(append([]string{"Total", ""}, f.tokenCells(snap.Total)...))
	table.Render()
	return f.render("Daily", snap, buf.String())
}

func (f *TableWriterFormatter) FormatSessions(snap *types.AggregateSnapshot) string {
	if snap.IsEmpty() {
		return f.formatEmptyReport("By Session", snap)
	}

	var buf bytes.Buffer
	table := newTable(&buf)
	table.Header(append(append([]string{"Session\n", "Project\n", "Models\n"}, tokenHeaders...), "Last\nActivity"))

	for _, s := range snap.Sessions() {
		row := append([]string{shortID(s.SessionID), aggregator.ProjectName(s.ProjectID), modelList(s.Models)}, f.tokenCells(s.Usage)...)
		table.Append(append(row, s.End.In(f.timezone).Format("2006-01-02\n15:04")))
	}

	table.Footer(append(append([]string{"Total", "", ""}, f.tokenCells(snap.Total)...), ""))
	table.Render()
	return f.render("By Session", snap, buf.String())
}

func (f *TableWriterFormatter) render(kind string, snap *types.AggregateSnapshot, table string) string {
	var output strings.Builder
	output.WriteString(f.title(kind, snap))
	if f.noColor {
		output.WriteString(table)
	} else {
		output.WriteString(colorize(table))
	}
	if snap.Phase == types.PhaseFast {
		output.WriteString("\nRecent files only; full history still loading.\n")
	}
	return output.String()
}

func (f *TableWriterFormatter) title(kind string, snap *types.AggregateSnapshot) string {
	style := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2)
	if !f.noColor {
		style = style.Bold(true).BorderForeground(lipgloss.Color("205"))
	}
	return "\n" + style.Render(fmt.Sprintf("Claude Code Token Usage Report - %s (%s)", kind, snap.TimeRange.Label())) + "\n\n"
}

func (f *TableWriterFormatter) formatEmptyReport(kind string, snap *types.AggregateSnapshot) string {
	return f.title(kind, snap) + "No usage data found for the specified period.\n"
}

// colorize paints borders gray, the header cyan and the Total row yellow
func colorize(tableOutput string) string {
	const (
		gray   = "\033[90m"
		cyan   = "\033[36m"
		yellow = "\033[33m"
		reset  = "\033[0m"
	)

	lines := strings.Split(tableOutput, "\n")
	var coloredOutput strings.Builder

	for i, line := range lines {
		if line == "" {
			if i < len(lines)-1 {
				coloredOutput.WriteString("\n")
			}
			continue
		}

		if strings.HasPrefix(line, "┌") || strings.HasPrefix(line, "├") || strings.HasPrefix(line, "└") {
			coloredOutput.WriteString(gray + line + reset)
		} else if strings.Contains(line, "│") {
			totalRow := strings.Contains(line, "Total")
			parts := strings.Split(line, "│")
			for j, part := range parts {
				if j > 0 {
					coloredOutput.WriteString(gray + "│" + reset)
				}
				switch {
				case i <= 2 && strings.TrimSpace(part) != "":
					coloredOutput.WriteString(cyan + part + reset)
				case totalRow && strings.TrimSpace(part) != "":
					coloredOutput.WriteString(yellow + part + reset)
				default:
					coloredOutput.WriteString(part)
				}
			}
		} else {
			coloredOutput.WriteString(line)
		}

		if i < len(lines)-1 {
			coloredOutput.WriteString("\n")
		}
	}
	return coloredOutput.String()
}

var (
	heatLow  = mustHex("#3fb950")
	heatHigh = mustHex("#f85149")
)

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// HeatColor maps a 0..1 share of the peak day to a green-to-red hex color
func HeatColor(frac float64) string {
	frac = max(0, min(1, frac))
	return heatLow.BlendLab(heatHigh, frac).Clamped().Hex()
}

// ShortenModelName gives the compact table label for a model id:
// claude-opus-4-1-20250805 -> Opus-4.1, claude-3-5-sonnet-20241022 -> Sonnet-3.5
func ShortenModelName(model string) string {
	if name := pricing.DisplayName(model); name != model {
		return strings.ReplaceAll(name, " ", "-")
	}

	knownModels := map[string]string{
		"gpt-4o":        "gpt-4o",
		"gpt-4o-mini":   "gpt-4o-mini",
		"gpt-4":         "gpt-4",
		"gpt-3.5-turbo": "gpt-3.5",
	}
	if short, ok := knownModels[model]; ok {
		return short
	}

	if len(model) > 12 {
		return model[:12]
	}
	return model
}

func modelList(models []string) string {
	if len(models) == 0 {
		return "-"
	}
	seen := make(map[string]bool, len(models))
	var short []string
	for _, m := range models {
		s := ShortenModelName(m)
		if !seen[s] {
			seen[s] = true
			short = append(short, s)
		}
	}
	return "- " + strings.Join(short, "\n- ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func share(part, total decimal.Decimal) string {
	if !total.IsPositive() {
		return "-"
	}
	return part.Div(total).Shift(2).StringFixed(1) + "%"
}

func formatCost(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func formatLargeNumber(n int64) string {
	if n == 0 {
		return "-"
	}
	return formatNumberWithCommas(n)
}

// formatNumberWithCommas formats a number with thousand separators
func formatNumberWithCommas(n int64) string {
	if n < 0 {
		return "-" + formatNumberWithCommas(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return formatNumberWithCommas(n/1000) + "," + fmt.Sprintf("%03d", n%1000)
}
