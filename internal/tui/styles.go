// Package tui holds the terminal presentation layer: styles, markdown
// rendering, and the interactive session picker.
package tui

import (
	"image/color"

	"charm.land/lipgloss/v2"
)

// Theme groups the colors used across the interface.
type Theme struct {
	Primary   color.Color
	Secondary color.Color
	Accent    color.Color
	Muted     color.Color
	Error     color.Color
	Warning   color.Color
	Success   color.Color
}

// DefaultTheme is a dark palette tuned for common terminal backgrounds.
func DefaultTheme() Theme {
	return Theme{
		Primary:   lipgloss.Color("#7aa2f7"),
		Secondary: lipgloss.Color("#bb9af7"),
		Accent:    lipgloss.Color("#7dcfff"),
		Muted:     lipgloss.Color("#565f89"),
		Error:     lipgloss.Color("#f7768e"),
		Warning:   lipgloss.Color("#e0af68"),
		Success:   lipgloss.Color("#9ece6a"),
	}
}

// Styles are the prebuilt lipgloss styles for the REPL and picker.
type Styles struct {
	Prompt    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Muted     lipgloss.Style
	Error     lipgloss.Style
	Warning   lipgloss.Style
	Success   lipgloss.Style
	Title     lipgloss.Style
	Selected  lipgloss.Style
	Tag       lipgloss.Style
}

// NewStyles builds the style set for a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Prompt:    lipgloss.NewStyle().Foreground(t.Primary).Bold(true),
		User:      lipgloss.NewStyle().Foreground(t.Accent).Bold(true),
		Assistant: lipgloss.NewStyle().Foreground(t.Secondary).Bold(true),
		Muted:     lipgloss.NewStyle().Foreground(t.Muted),
		Error:     lipgloss.NewStyle().Foreground(t.Error),
		Warning:   lipgloss.NewStyle().Foreground(t.Warning),
		Success:   lipgloss.NewStyle().Foreground(t.Success),
		Title:     lipgloss.NewStyle().Foreground(t.Primary).Bold(true),
		Selected:  lipgloss.NewStyle().Foreground(t.Accent).Bold(true),
		Tag:       lipgloss.NewStyle().Foreground(t.Warning),
	}
}
