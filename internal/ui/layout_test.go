package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestLayoutContentArea(t *testing.T) {
	l := NewLayout(100, 30)
	assert.Equal(t, 100, l.ContentWidth())
	assert.Equal(t, 28, l.ContentHeight())

	assert.Equal(t, 1, NewLayout(10, 1).ContentHeight())
}

func TestFrame(t *testing.T) {
	l := NewLayout(60, 6)
	out := l.Frame("chocosync watch", "idle · next 10:15", "report line", "r refresh")

	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 6)
	assert.Contains(t, lines[0], "chocosync watch")
	assert.Contains(t, lines[0], "idle · next 10:15")
	assert.GreaterOrEqual(t, lipgloss.Width(lines[0]), 60)
	assert.Contains(t, lines[1], "report line")
	assert.Contains(t, lines[5], "r refresh")
}

func TestFrameClipsTallContent(t *testing.T) {
	l := NewLayout(40, 4)
	content := strings.Repeat("row\n", 10)

	lines := strings.Split(l.Frame("top", "", content, "bottom"), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[3], "bottom")
}
