// Package monitor is the live terminal view over the engine. It shows the
// fast snapshot as soon as it is published and swaps in the full one when the
// background sweep finishes.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sdpower/ccdash/internal/engine"
	"github.com/sdpower/ccdash/internal/output"
	"github.com/sdpower/ccdash/internal/types"
)

// Source is the part of the engine the monitor reads from
type Source interface {
	Query(tr types.TimeRange) *types.AggregateSnapshot
	LoadStatus() types.LoadStatus
	Updates() <-chan types.LoadStatus
	Reload(ctx context.Context) (*engine.LoadHandle, error)
}

type Options struct {
	Range    types.TimeRange
	Interval time.Duration
	NoColor  bool
	Location *time.Location
	// Watching only changes the footer; the watcher itself runs elsewhere
	Watching bool
}

type model struct {
	ctx     context.Context
	src     Source
	options Options
	summary *output.SummaryFormatter

	tr         types.TimeRange
	snap       *types.AggregateSnapshot
	status     types.LoadStatus
	lastUpdate time.Time
	err        error
	width      int
	height     int
	quitting   bool
}

type (
	tickMsg   time.Time
	statusMsg types.LoadStatus
	reloadMsg struct{ err error }
)

func newModel(ctx context.Context, src Source, opts Options) model {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	m := model{
		ctx:     ctx,
		src:     src,
		options: opts,
		summary: output.NewSummaryFormatter(opts.NoColor, opts.Location),
		tr:      opts.Range,
		status:  src.LoadStatus(),
	}
	m.refresh()
	return m
}

func (m *model) refresh() {
	m.snap = m.src.Query(m.tr)
	m.lastUpdate = time.Now()
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(m.options.Interval),
		waitForStatus(m.src.Updates()),
		tea.WindowSize(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, reloadCmd(m.ctx, m.src)
		case "t":
			m.tr = m.tr.Next()
			m.refresh()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case statusMsg:
		m.status = types.LoadStatus(msg)
		m.refresh()
		return m, waitForStatus(m.src.Updates())

	case reloadMsg:
		m.err = msg.err

	case tickMsg:
		// relative ranges slide with the clock
		m.refresh()
		return m, tickCmd(m.options.Interval)
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)
	panelStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
	mutedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	if m.options.NoColor {
		headerStyle = lipgloss.NewStyle()
		panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
		mutedStyle = lipgloss.NewStyle()
		errStyle = lipgloss.NewStyle()
	}

	var content strings.Builder
	content.WriteString(headerStyle.Render(fmt.Sprintf("Claude Code Usage Monitor - %s", m.tr.Label())))
	content.WriteString("\n\n")
	content.WriteString(panelStyle.Render(m.summary.Body(m.snap)))
	content.WriteString("\n")

	if bars := m.renderDailyBars(); bars != "" {
		content.WriteString("\n")
		content.WriteString(bars)
	}

	content.WriteString("\n")
	if line := m.summary.StatusLine(m.status); line != "" {
		content.WriteString(line)
		content.WriteString("\n")
	}
	if m.err != nil {
		content.WriteString(errStyle.Render(fmt.Sprintf("Reload failed: %v", m.err)))
		content.WriteString("\n")
	}

	help := fmt.Sprintf("q quit · r reload · t range (next: %s) · updated %s",
		m.tr.Next().Label(), m.lastUpdate.In(m.options.Location).Format("15:04:05"))
	if m.options.Watching {
		help += " · watching for changes"
	}
	content.WriteString("\n")
	content.WriteString(mutedStyle.Render(help))
	return content.String()
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForStatus(updates <-chan types.LoadStatus) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-updates
		if !ok {
			return nil
		}
		return statusMsg(s)
	}
}

func reloadCmd(ctx context.Context, src Source) tea.Cmd {
	return func() tea.Msg {
		_, err := src.Reload(ctx)
		return reloadMsg{err: err}
	}
}
