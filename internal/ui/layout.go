package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/chocosync/internal/theme"
)

// The dashboard has one header row and one status row around the content.
const chromeRows = 2

// Layout holds the terminal size of the watch dashboard.
type Layout struct {
	Width  int
	Height int
}

// NewLayout creates a Layout for a terminal of the given size.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height}
}

// ContentWidth is the width of the report area.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight is the height of the report area. It never goes below one
// line.
func (l Layout) ContentHeight() int {
	return max(l.Height-chromeRows, 1)
}

// Frame renders the dashboard: the title and run status in the header, the
// content clipped and padded to the report area, and the key hints below.
func (l Layout) Frame(title, status, content, hints string) string {
	body := lipgloss.NewStyle().
		Width(l.ContentWidth()).
		Height(l.ContentHeight()).
		MaxHeight(l.ContentHeight()).
		Render(content)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		l.bar(theme.HeaderStyle, title, status),
		body,
		l.bar(theme.StatusBarStyle, hints, ""),
	)
}

// bar renders a full-width row with left and right aligned text.
func (l Layout) bar(style lipgloss.Style, left, right string) string {
	leftRendered := style.Render(left)
	var rightRendered string
	if right != "" {
		rightRendered = style.Render(right)
	}

	gap := max(l.Width-lipgloss.Width(leftRendered)-lipgloss.Width(rightRendered), 0)
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, leftRendered, filler, rightRendered)
}
