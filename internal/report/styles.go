package report

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	passColor    = lipgloss.Color("#10B981") // Green
	warnColor    = lipgloss.Color("#F59E0B") // Amber
	failColor    = lipgloss.Color("#F87171") // Red
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			MarginTop(1)

	passStyle  = lipgloss.NewStyle().Foreground(passColor)
	warnStyle  = lipgloss.NewStyle().Foreground(warnColor)
	failStyle  = lipgloss.NewStyle().Foreground(failColor)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
)

const (
	passMark = "✓"
	failMark = "✗"
)
