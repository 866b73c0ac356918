package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/chocosync/internal/keys"
	appsync "github.com/nhle/chocosync/internal/sync"
	"github.com/nhle/chocosync/internal/theme"
	"github.com/nhle/chocosync/internal/ui"
	helpview "github.com/nhle/chocosync/internal/ui/help"
	"github.com/nhle/chocosync/internal/ui/report"
	"github.com/nhle/chocosync/internal/workflow"
)

// historySize is how many past runs the watch view lists.
const historySize = 5

// Scheduler is the part of the poller the watch view drives.
type Scheduler interface {
	Start() tea.Cmd
	Stop()
	Refresh() tea.Cmd
	Status() appsync.RunStatus
	WaitForNextResult() tea.Cmd
}

// Model is the root Bubble Tea model of `chocosync watch`.
type Model struct {
	layout   ui.Layout
	keys     *keys.KeyMap
	poller   Scheduler
	helpView helpview.Model
	spinner  spinner.Model
	showHelp bool
	ready    bool

	reports          []workflow.Report
	authErrorMessage string
}

// New creates the watch view around a poller.
func New(p Scheduler) Model {
	k := keys.DefaultKeyMap()
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		layout:   ui.NewLayout(80, 24),
		keys:     k,
		poller:   p,
		helpView: helpview.New(k, 80, 24),
		spinner:  sp,
	}
}

// Init starts the schedule and the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.poller.Start(), m.spinner.Tick)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		m.helpView.SetSize(m.layout.ContentWidth(), m.layout.ContentHeight())
		return m, nil

	case appsync.RunResultMsg:
		if msg.AuthError != nil {
			m.authErrorMessage = msg.AuthError.Message
		} else {
			m.authErrorMessage = ""
		}
		m.reports = append([]workflow.Report{msg.Report}, m.reports...)
		if len(m.reports) > historySize {
			m.reports = m.reports[:historySize]
		}
		return m, m.poller.WaitForNextResult()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.poller.Stop()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			return m, m.poller.Refresh()
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		}
	}
	return m, nil
}

// View renders the header, the latest report and the status bar.
func (m Model) View() string {
	var content string
	if m.showHelp {
		content = m.helpView.View()
	} else {
		content = m.renderContent()
	}

	return m.layout.Frame("chocosync watch", m.runStatus(), content, m.keyHints())
}

func (m Model) renderContent() string {
	if len(m.reports) == 0 {
		return theme.HelpStyle.Render("Waiting for the first run...")
	}

	var b strings.Builder
	b.WriteString(report.Render(m.reports[0]))

	if len(m.reports) > 1 {
		b.WriteString("\n")
		b.WriteString(theme.LabelStyle.Render("history"))
		b.WriteString("\n")
		for _, r := range m.reports[1:] {
			b.WriteString(historyLine(r))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func historyLine(r workflow.Report) string {
	t := r.Totals()
	line := fmt.Sprintf("%s  applied %d  incomplete %d  failed %d",
		r.Finished.Format("01/02 15:04"), t.Applied, t.Incomplete, t.Failed)
	if err := r.Err(); err != nil {
		line += "  " + theme.ErrorStyle.Render(err.Error())
	}
	return line
}

// runStatus summarizes the scheduler for the header.
func (m Model) runStatus() string {
	st := m.poller.Status()
	switch st.State {
	case appsync.RunRunning:
		return m.spinner.View() + " running"
	case appsync.RunError:
		return "last run failed · next " + formatNext(st.NextRun)
	default:
		if st.Runs == 0 {
			return "starting"
		}
		return "idle · next " + formatNext(st.NextRun)
	}
}

func formatNext(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("15:04")
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.authErrorMessage != "" {
		return m.authErrorMessage
	}
	if m.showHelp {
		return "? close help"
	}
	return "r run now | ? help | q quit"
}
