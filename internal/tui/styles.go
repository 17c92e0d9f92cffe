// Package tui: Lipgloss style constants for the "Enclave Dark" theme.
package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds all theme-aware Lipgloss styles.
type Styles struct {
	// Colors
	Background lipgloss.Color
	Surface    lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Danger     lipgloss.Color
	Warning    lipgloss.Color
	Success    lipgloss.Color
	Muted      lipgloss.Color
	Text       lipgloss.Color

	// Component styles
	Header      lipgloss.Style
	PanelTitle  lipgloss.Style
	TableHeader lipgloss.Style
	TableRow    lipgloss.Style
	TableRowSel lipgloss.Style
	EventFeed   lipgloss.Style
	Footer      lipgloss.Style
	FooterKey   lipgloss.Style
	Modal       lipgloss.Style
	StatusOK    lipgloss.Style
	StatusWarn  lipgloss.Style
	StatusErr   lipgloss.Style
}

// newStyles returns the "Enclave Dark" theme styles.
func newStyles() Styles {
	bg := lipgloss.Color("#0D1810")
	surface := lipgloss.Color("#172B1A")
	primary := lipgloss.Color("#8CDE7B")
	accent := lipgloss.Color("#56C8E0")
	danger := lipgloss.Color("#F56565")
	warning := lipgloss.Color("#ECC94B")
	success := lipgloss.Color("#68D391")
	muted := lipgloss.Color("#4A5568")
	text := lipgloss.Color("#E2E8F0")

	return Styles{
		Background: bg, Surface: surface, Primary: primary,
		Accent: accent, Danger: danger, Warning: warning,
		Success: success, Muted: muted, Text: text,

		Header: lipgloss.NewStyle().
			Background(primary).Foreground(bg).
			Bold(true).Padding(0, 1),

		PanelTitle: lipgloss.NewStyle().
			Foreground(primary).Bold(true).
			BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).
			BorderForeground(muted).Padding(0, 1),

		TableHeader: lipgloss.NewStyle().
			Foreground(muted).Bold(true).Padding(0, 1),

		TableRow: lipgloss.NewStyle().
			Foreground(text).Padding(0, 1),

		TableRowSel: lipgloss.NewStyle().
			Background(surface).Foreground(accent).Bold(true).Padding(0, 1),

		EventFeed: lipgloss.NewStyle().
			Background(bg).Foreground(text).
			Padding(0, 1),

		Footer: lipgloss.NewStyle().
			Background(surface).Foreground(muted).
			Padding(0, 1),

		FooterKey: lipgloss.NewStyle().
			Foreground(primary).Bold(true),

		Modal: lipgloss.NewStyle().
			Background(surface).Foreground(text).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primary).
			Padding(1, 2),

		StatusOK:   lipgloss.NewStyle().Foreground(success),
		StatusWarn: lipgloss.NewStyle().Foreground(warning),
		StatusErr:  lipgloss.NewStyle().Foreground(danger),
	}
}
