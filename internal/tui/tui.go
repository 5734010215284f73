// Package tui renders the live status view for `idxr status --watch`: a
// bubbletea program listing every partition and model with its status
// classification, refreshed on a timer.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/GetAdriAI/idxr/internal/domain"
	"github.com/GetAdriAI/idxr/internal/status"
)

// Refresher supplies a fresh status snapshot on demand.
type Refresher func() ([]status.ModelStatus, error)

// Model is the Bubble Tea model for the live status view.
type Model struct {
	refresh  Refresher
	interval time.Duration
	table    table.Model
	rows     []status.ModelStatus
	err      error
}

// New builds a Model that polls refresh every interval (default 2s).
func New(refresh Refresher, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	columns := []table.Column{
		{Title: "PARTITION", Width: 24},
		{Title: "MODEL", Width: 24},
		{Title: "STATUS", Width: 12},
		{Title: "ROW", Width: 10},
		{Title: "WARNING", Width: 40},
	}
	t := table.New(table.WithColumns(columns), table.WithFocused(false), table.WithHeight(20))
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true)
	styles.Selected = lipgloss.NewStyle()
	t.SetStyles(styles)

	return Model{refresh: refresh, interval: interval, table: t}
}

type tickMsg time.Time

type loadedMsg struct {
	rows []status.ModelStatus
	err  error
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), tick(m.interval))
}

func (m Model) load() tea.Cmd {
	refresh := m.refresh
	return func() tea.Msg {
		rows, err := refresh()
		return loadedMsg{rows: rows, err: err}
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.load(), tick(m.interval))
	case loadedMsg:
		m.rows = msg.rows
		m.err = msg.err
		m.table.SetRows(rowsToTable(m.rows))
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	completeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	startedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	erroredStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	notStartedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func rowsToTable(rows []status.ModelStatus) []table.Row {
	out := make([]table.Row, len(rows))
	for i, row := range rows {
		out[i] = table.Row{row.Partition, row.Model, styleStatus(row.Status), fmt.Sprintf("%d", row.Record.RowIndex), row.IntegrityWarning}
	}
	return out
}

func (m Model) View() string {
	if m.err != nil {
		return fmt.Sprintf("error refreshing status: %v\n", m.err)
	}
	return m.table.View() + "\n(press q to quit)\n"
}

func styleStatus(s domain.Status) string {
	switch s {
	case domain.StatusComplete:
		return completeStyle.Render(string(s))
	case domain.StatusStarted:
		return startedStyle.Render(string(s))
	case domain.StatusErrored:
		return erroredStyle.Render(string(s))
	default:
		return notStartedStyle.Render(string(s))
	}
}

// RenderPlain formats rows as plain text/table output, used by `idxr
// status` without --watch (no bubbletea dependency invoked on that path).
func RenderPlain(rows []status.ModelStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %-24s %-12s %-8s %s\n", "PARTITION", "MODEL", "STATUS", "ROW", "WARNING")
	for _, row := range rows {
		fmt.Fprintf(&b, "%-24s %-24s %-12s %-8d %s\n", row.Partition, row.Model, string(row.Status), row.Record.RowIndex, row.IntegrityWarning)
	}
	return b.String()
}
