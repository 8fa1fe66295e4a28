package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	// Colors
	ColorPrimary   = lipgloss.Color("#bd93f9") // Dracula Purple
	ColorSecondary = lipgloss.Color("#ff79c6") // Dracula Pink
	ColorSuccess   = lipgloss.Color("#50fa7b") // Dracula Green
	ColorError     = lipgloss.Color("#ff5555") // Dracula Red
	ColorWarning   = lipgloss.Color("#ffb86c") // Dracula Orange
	ColorText      = lipgloss.Color("#f8f8f2") // Dracula Foreground
	ColorSubtext   = lipgloss.Color("#6272a4") // Dracula Comment
	ColorBorder    = lipgloss.Color("#44475a") // Dracula Selection

	AppStyle = lipgloss.NewStyle().
			Padding(DefaultPaddingY, DefaultPaddingX).
			Foreground(ColorText)

	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(DefaultPaddingY, DefaultPaddingX)

	CardTitleStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	CardStatsStyle = lipgloss.NewStyle().
			Foreground(ColorSubtext).
			Italic(true)

	StatusRunningStyle  = lipgloss.NewStyle().Foreground(ColorSecondary)
	StatusPausedStyle   = lipgloss.NewStyle().Foreground(ColorWarning)
	StatusCompleteStyle = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	StatusErrorStyle    = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	HelpStyle           = lipgloss.NewStyle().Foreground(ColorSubtext)
)

// DisableColor forces plain ASCII rendering for every style and new progress bars.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
	noColor = true
}

var noColor bool
