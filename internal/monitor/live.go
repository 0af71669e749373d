package monitor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/shopspring/decimal"

	"github.com/sdpower/ccdash/internal/output"
)

const maxBarDays = 14

// renderDailyBars draws the most recent days' cost relative to the peak day
func (m model) renderDailyBars() string {
	days := m.snap.ByDay
	if len(days) == 0 {
		return ""
	}
	if len(days) > maxBarDays {
		days = days[len(days)-maxBarDays:]
	}

	peak := decimal.Zero
	for _, d := range days {
		if d.Cost.GreaterThan(peak) {
			peak = d.Cost
		}
	}

	barWidth := 40
	if m.width >= 120 {
		barWidth = 60
	} else if m.width > 0 && m.width < 80 {
		barWidth = 24
	}

	var b strings.Builder
	for _, d := range days {
		percent := 0.0
		if peak.IsPositive() {
			percent = d.Cost.Div(peak).InexactFloat64() * 100
		}
		fmt.Fprintf(&b, "%s %s $%s  %s\n",
			d.Date,
			m.renderEnhancedProgressBar(percent, barWidth),
			d.Cost.StringFixed(2),
			formatTokensShort(d.Tokens.Total()))
	}
	return b.String()
}

func (m model) renderEnhancedProgressBar(percent float64, width int) string {
	percent = max(0, min(100, percent))
	filled := min(width, int(percent*float64(width)/100))

	filledStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(output.HeatColor(percent / 100)))
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	if m.options.NoColor {
		filledStyle = lipgloss.NewStyle()
		emptyStyle = lipgloss.NewStyle()
	}

	return "[" +
		filledStyle.Render(strings.Repeat("█", filled)) +
		emptyStyle.Render(strings.Repeat("░", width-filled)) +
		"]"
}

// formatTokensShort formats tokens with k/M suffix
func formatTokensShort(n int64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	if n >= 1000 {
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}

// Run shows the live view until the user quits or ctx ends
func Run(ctx context.Context, src Source, opts Options) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("live monitoring requires an interactive terminal (TTY)")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := tea.NewProgram(
		newModel(ctx, src, opts),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
