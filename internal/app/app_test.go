package app

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appsync "github.com/nhle/chocosync/internal/sync"
	"github.com/nhle/chocosync/internal/workflow"
)

type fakeScheduler struct {
	status    appsync.RunStatus
	started   int
	stopped   int
	refreshed int
	waits     int
}

func (f *fakeScheduler) Start() tea.Cmd {
	f.started++
	return nil
}

func (f *fakeScheduler) Stop() { f.stopped++ }

func (f *fakeScheduler) Refresh() tea.Cmd {
	f.refreshed++
	return nil
}

func (f *fakeScheduler) Status() appsync.RunStatus { return f.status }

func (f *fakeScheduler) WaitForNextResult() tea.Cmd {
	f.waits++
	return func() tea.Msg { return nil }
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(Model)
	require.True(t, ok)
	return mm, cmd
}

func reportAt(id string, finished time.Time, sums ...workflow.Summary) workflow.Report {
	return workflow.Report{RunID: id, Started: finished.Add(-time.Second), Finished: finished, Summaries: sums}
}

func TestInitStartsPoller(t *testing.T) {
	f := &fakeScheduler{}
	m := New(f)
	_ = m.Init()
	assert.Equal(t, 1, f.started)
}

func TestRunResultKeepsHistoryAndListens(t *testing.T) {
	f := &fakeScheduler{status: appsync.RunStatus{State: appsync.RunIdle, Runs: 1}}
	m := New(f)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})

	base := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < historySize+2; i++ {
		var cmd tea.Cmd
		m, cmd = update(t, m, appsync.RunResultMsg{Report: reportAt(
			"run-"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute),
			workflow.Summary{Workflow: workflow.Confirmation, Applied: i},
		)})
		assert.NotNil(t, cmd)
	}

	assert.Equal(t, historySize+2, f.waits)
	require.Len(t, m.reports, historySize)
	assert.Equal(t, "run-g", m.reports[0].RunID)

	view := m.View()
	assert.Contains(t, view, "run run-g")
	assert.Contains(t, view, "history")
	assert.Contains(t, view, "idle")
}

func TestAuthErrorShownInStatusBar(t *testing.T) {
	f := &fakeScheduler{status: appsync.RunStatus{State: appsync.RunError, Runs: 1}}
	m := New(f)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 30})

	m, _ = update(t, m, appsync.RunResultMsg{
		Error:     errors.New("auth"),
		AuthError: &appsync.AuthErrorMsg{Message: "imap: authentication failed"},
		Report:    reportAt("run-1", time.Now()),
	})
	assert.Contains(t, m.View(), "imap: authentication failed")
	assert.Contains(t, m.View(), "last run failed")

	m, _ = update(t, m, appsync.RunResultMsg{Report: reportAt("run-2", time.Now())})
	assert.Empty(t, m.authErrorMessage)
}

func TestKeys(t *testing.T) {
	f := &fakeScheduler{}
	m := New(f)

	m, _ = update(t, m, runes("r"))
	assert.Equal(t, 1, f.refreshed)

	m, _ = update(t, m, runes("?"))
	assert.True(t, m.showHelp)
	assert.Contains(t, m.View(), "Keyboard Shortcuts")

	_, cmd := update(t, m, runes("q"))
	assert.Equal(t, 1, f.stopped)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestWaitingView(t *testing.T) {
	m := New(&fakeScheduler{})
	assert.Contains(t, m.View(), "Waiting for the first run")
	assert.Contains(t, m.View(), "starting")
}
