package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	colorAccent = lipgloss.Color("#8942E1")
	colorTeal   = lipgloss.Color("#3AC4BA")
	colorOK     = lipgloss.Color("#10B981")
	colorWarn   = lipgloss.Color("#F59E0B")
	colorError  = lipgloss.Color("#EF4444")
	colorMuted  = lipgloss.Color("241")
)

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(colorAccent)
	subtitleStyle   = lipgloss.NewStyle().Italic(true).Foreground(colorTeal)
	subtleStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	okStyle         = lipgloss.NewStyle().Bold(true).Foreground(colorOK)
	warnStyle       = lipgloss.NewStyle().Bold(true).Foreground(colorWarn)
	errorStyle      = lipgloss.NewStyle().Bold(true).Foreground(colorError)
	helpStyle       = subtleStyle.Italic(true)
	statsBox        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorMuted).Padding(1, 2).Margin(0, 1)
	listHeaderStyle = titleStyle.Underline(false)
	fieldNameStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	fieldTypeStyle  = lipgloss.NewStyle().Foreground(colorTeal)
)

// renderFooter puts an optional status line above the help lines.
func renderFooter(statusLine string, helpLines ...string) string {
	lines := make([]string, 0, len(helpLines)+1)
	if statusLine != "" {
		lines = append(lines, subtleStyle.Render(statusLine))
	}
	for _, l := range helpLines {
		lines = append(lines, helpStyle.Render(l))
	}
	return strings.Join(lines, "\n")
}
