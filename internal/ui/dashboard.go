package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"axectl/internal/monitor"
	"axectl/internal/output"
)

// reportMsg delivers one monitor tick to the dashboard.
type reportMsg monitor.TickReport

// dashboardKeyMap defines key bindings for the monitor dashboard
type dashboardKeyMap struct {
	Quit key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k dashboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k dashboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Quit}}
}

// DashboardModel is the live monitoring view. The monitor loop runs outside
// bubbletea and feeds tick reports through a channel; the model only renders
// the latest one.
type DashboardModel struct {
	Reports <-chan monitor.TickReport

	spinner spinner.Model
	help    help.Model
	keys    dashboardKeyMap

	latest   *monitor.TickReport
	ticks    int
	quitting bool
}

// NewDashboard creates the monitor dashboard reading from reports.
func NewDashboard(reports <-chan monitor.TickReport) DashboardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = HeaderStyle

	return DashboardModel{
		Reports: reports,
		spinner: s,
		help:    help.New(),
		keys: dashboardKeyMap{
			Quit: key.NewBinding(
				key.WithKeys("q", "esc", "ctrl+c"),
				key.WithHelp("q", "quit"),
			),
		},
	}
}

// waitForReport blocks on the next tick report.
func waitForReport(reports <-chan monitor.TickReport) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-reports
		if !ok {
			return tea.Quit()
		}
		return reportMsg(r)
	}
}

// Init starts the spinner and the first report wait.
func (m DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForReport(m.Reports))
}

// Update handles key presses and incoming tick reports.
func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case reportMsg:
		r := monitor.TickReport(msg)
		m.latest = &r
		m.ticks++
		return m, waitForReport(m.Reports)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the latest tick.
func (m DashboardModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("axectl monitor"))
	b.WriteString("\n\n")

	if m.latest == nil {
		b.WriteString(fmt.Sprintf("%s polling fleet...\n", m.spinner.View()))
		return b.String()
	}

	r := m.latest
	b.WriteString(output.StatsTable(r.Samples))
	b.WriteString(output.SummaryBlock(r.Summary))

	if len(r.Alerts) > 0 {
		b.WriteString("\n")
		b.WriteString(AlertStyle.Render(fmt.Sprintf("%s ALERTS", AlertMarker)))
		b.WriteString("\n")
		for _, a := range r.Alerts {
			b.WriteString(fmt.Sprintf("  %s\n", a.Message))
		}
	}

	b.WriteString("\n")
	b.WriteString(MutedStyle.Render(fmt.Sprintf("tick %d at %s", m.ticks, r.At.Format(time.Kitchen))))
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}
