package ui

import "github.com/charmbracelet/lipgloss"

var (
	accent  = lipgloss.Color("#00B7C3")
	green   = lipgloss.Color("#3FB950")
	yellow  = lipgloss.Color("#D29922")
	red     = lipgloss.Color("#F85149")
	magenta = lipgloss.Color("#BC8CFF")
	dim     = lipgloss.Color("#8B949E")

	titleStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(accent)

	valueStyle = lipgloss.NewStyle().
			Foreground(yellow)

	successStyle = lipgloss.NewStyle().
			Foreground(green).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(yellow).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(red).
			Bold(true)

	highlightStyle = lipgloss.NewStyle().
			Foreground(magenta)

	dimStyle = lipgloss.NewStyle().
			Foreground(dim)

	indexStyle = lipgloss.NewStyle().
			Foreground(dim).
			Width(5).
			Align(lipgloss.Right)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)
)
