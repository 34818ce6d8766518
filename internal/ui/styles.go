// Package ui styles contains shared styling definitions.
// Centralized styles ensure visual consistency across all views.
package ui

import "github.com/charmbracelet/lipgloss"

// Color palette - using a cohesive purple/violet theme
var (
	ColorPrimary = lipgloss.Color("#7C3AED") // Violet
	ColorAccent  = lipgloss.Color("#10B981") // Emerald (success)
	ColorWarning = lipgloss.Color("#F59E0B") // Amber
	ColorError   = lipgloss.Color("#EF4444") // Red
	ColorMuted   = lipgloss.Color("#626262") // Gray
	ColorText    = lipgloss.Color("#FAFAFA") // White
	ColorSubtle  = lipgloss.Color("#A1A1AA") // Zinc
)

// Shared styles
var (
	// Title styles
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText).
			Background(ColorPrimary).
			Padding(0, 1)

	// Secondary information under a title
	InfoStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	// Help text style
	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// Error message style
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	// Success message style
	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorAccent)

	// Partial success
	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)
)

// stepStyles maps a step status to its icon and style.
var stepStyles = map[string]struct {
	icon  string
	style lipgloss.Style
}{
	stepDone:    {"✓", lipgloss.NewStyle().Foreground(ColorAccent)},
	stepRunning: {"◐", lipgloss.NewStyle().Foreground(ColorWarning)},
	stepError:   {"✗", lipgloss.NewStyle().Foreground(ColorError)},
	stepPending: {"○", lipgloss.NewStyle().Foreground(ColorMuted)},
}
