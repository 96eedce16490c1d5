package ui

import "github.com/charmbracelet/lipgloss"

// ANSI 256 palette.
const (
	ColorAccent  = "79" // sea green
	ColorMuted   = "245"
	ColorBorder  = "238"
	ColorError   = "196"
	ColorWarning = "220"
)

// Styles are the lipgloss styles used by the TUI and status output.
type Styles struct {
	Title   lipgloss.Style
	Accent  lipgloss.Style
	Label   lipgloss.Style
	Dim     lipgloss.Style
	Border  lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
}

// GetStyles returns the colored styles, or plain ones when noColor is set.
func GetStyles(noColor bool) Styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return Styles{plain, plain, plain, plain, plain, plain, plain}
	}
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Accent:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorMuted)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBorder)),
		Border:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBorder)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWarning)),
	}
}
