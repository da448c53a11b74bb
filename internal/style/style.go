// Package style provides terminal styling for the wipbot CLI.
package style

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Success style for positive outcomes
	Success = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10")).
		Bold(true)

	// Warning style for cautionary messages
	Warning = lipgloss.NewStyle().
		Foreground(lipgloss.Color("11")).
		Bold(true)

	// Error style for failures
	Error = lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	Info = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	Dim  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	Bold = lipgloss.NewStyle().Bold(true)

	// Heading underlines section titles in reports.
	Heading = lipgloss.NewStyle().
		Bold(true).
		Underline(true).
		MarginTop(1)

	// Label pads field names so values line up.
	Label = lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Width(14)

	SuccessPrefix = Success.Render("✓")
	WarningPrefix = Warning.Render("⚠")
	ErrorPrefix   = Error.Render("✗")
	ArrowPrefix   = Info.Render("→")
)

// Field renders "label value" with an aligned label.
func Field(label, value string) string {
	return Label.Render(label) + value
}

// Progress colours a completion percentage: green when done, yellow past
// halfway, dim below.
func Progress(percent int) string {
	s := fmt.Sprintf("%3d%%", percent)
	switch {
	case percent >= 100:
		return Success.Render(s)
	case percent >= 50:
		return Warning.Render(s)
	default:
		return Dim.Render(s)
	}
}
