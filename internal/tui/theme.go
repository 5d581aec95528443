package tui

import "github.com/charmbracelet/lipgloss"

// Adaptive palette; lipgloss drops colour on NO_COLOR or dumb terminals.
var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
	colorBorder  = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	textSuccess  = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	textError    = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	textInfo     = lipgloss.NewStyle().Foreground(colorInfo)
	textMuted    = lipgloss.NewStyle().Foreground(colorMuted)
	deviceStyle  = lipgloss.NewStyle().Bold(true)
	frameStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorBorder).Padding(0, 1)
	spinnerStyle = lipgloss.NewStyle().Foreground(colorInfo)
)
