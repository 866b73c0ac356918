// Package report renders batch run reports for the terminal.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nhle/chocosync/internal/theme"
	"github.com/nhle/chocosync/internal/workflow"
)

var columns = []string{"workflow", "found", "applied", "incomplete", "failed", "not_found", "skipped"}

// Render draws one row per workflow plus a totals row, followed by any
// workflow errors.
func Render(r workflow.Report) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers(columns...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Bold(true).Foreground(theme.ColorGray)
			}
			if col > 1 {
				return s.Inherit(theme.OutcomeStyle(columns[col])).Bold(false).Align(lipgloss.Right)
			}
			return s
		})

	for _, s := range r.Summaries {
		t.Row(row(string(s.Workflow), s)...)
	}
	if len(r.Summaries) > 1 {
		t.Row(row("total", r.Totals())...)
	}

	var b strings.Builder
	b.WriteString(header(r))
	b.WriteString("\n")
	b.WriteString(t.Render())
	b.WriteString("\n")

	for _, s := range r.Summaries {
		if s.Err != nil {
			fmt.Fprintf(&b, "%s %s\n", theme.ErrorStyle.Render(string(s.Workflow)+":"), s.Err)
		}
	}
	return b.String()
}

func header(r workflow.Report) string {
	parts := []string{theme.HeaderStyle.Render("chocosync")}
	if r.RunID != "" {
		parts = append(parts, "run "+r.RunID)
	}
	if !r.Finished.IsZero() {
		parts = append(parts, r.Finished.Format("2006-01-02 15:04:05"))
		parts = append(parts, r.Finished.Sub(r.Started).Round(time.Millisecond).String())
	}
	if r.DryRun {
		parts = append(parts, theme.OutcomeStyle("skipped").Render("dry run"))
	}
	return strings.Join(parts, "  ")
}

func row(name string, s workflow.Summary) []string {
	return []string{
		name,
		strconv.Itoa(s.Conversations),
		strconv.Itoa(s.Applied),
		strconv.Itoa(s.Incomplete),
		strconv.Itoa(s.Failed),
		strconv.Itoa(s.NotFound),
		strconv.Itoa(s.Skipped),
	}
}
