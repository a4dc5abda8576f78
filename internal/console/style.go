package console

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"
)

// Palette.
var (
	colorPrimary = lipgloss.Color("#8B5CF6")
	colorTeal    = lipgloss.Color("#14B8A6")
	colorAccent  = lipgloss.Color("#F97316")
	colorSuccess = lipgloss.Color("#22C55E")
	colorError   = lipgloss.Color("#F43F5E")
	colorText    = lipgloss.Color("#F8FAFC")
	colorDim     = lipgloss.Color("#94A3B8")
	colorBar     = lipgloss.Color("#1E293B")
	colorBorder  = lipgloss.Color("#334155")
)

var (
	learnerStyle = lipgloss.NewStyle().Foreground(colorTeal).Bold(true)
	tutorStyle   = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
	passStyle    = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	bodyStyle    = lipgloss.NewStyle().Foreground(colorText)
	hintStyle    = lipgloss.NewStyle().Foreground(colorDim).Italic(true)

	barStyle = lipgloss.NewStyle().
			Background(colorBar).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder)
)

const (
	minWidth  = 60
	minHeight = 16
)

type keyHint struct {
	key  string
	desc string
}

func tooSmall(width, height int) bool {
	return width < minWidth || height < minHeight
}

func renderTooSmall(width, height int) string {
	return lipgloss.NewStyle().
		Align(lipgloss.Center).
		Foreground(colorText).
		Width(width).
		Height(height).
		Render(fmt.Sprintf("Window too small.\n\nNeed at least %d x %d, have %d x %d.", minWidth, minHeight, width, height))
}

// renderHeader draws the course name on the left, the status in the
// middle and the pass count on the right.
func renderHeader(course, status string, passed, total, width int) string {
	left := lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Render(" " + course)
	center := bodyStyle.Render(status)
	right := lipgloss.NewStyle().Foreground(colorAccent).Render(fmt.Sprintf("✓ %d/%d", passed, total))

	inner := max(width-4, 0)
	leftGap := max((inner-lipgloss.Width(center))/2-lipgloss.Width(left), 1)
	rightGap := max(inner-lipgloss.Width(left)-leftGap-lipgloss.Width(center)-lipgloss.Width(right), 1)

	content := left + strings.Repeat(" ", leftGap) + center + strings.Repeat(" ", rightGap) + right
	return barStyle.Width(width).Render(content)
}

func renderFooter(hints []keyHint, width int) string {
	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		parts = append(parts, lipgloss.NewStyle().Foreground(colorText).Bold(true).Render(h.key)+" "+
			lipgloss.NewStyle().Foreground(colorDim).Render(h.desc))
	}
	return barStyle.Width(width).Render("  " + strings.Join(parts, "   "))
}
