// Package components: TUI sub-components for Enclave's dashboard.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ─────────────────────────────────────────────────────────────────────────────
// Header component
// ─────────────────────────────────────────────────────────────────────────────

// Header renders the top status bar.
type Header struct {
	project  string
	envCount int
	runtime  bool
}

// NewHeader creates a Header for the named project.
func NewHeader(project string) Header {
	return Header{project: project, runtime: true}
}

func (h *Header) SetEnvCount(n int)          { h.envCount = n }
func (h *Header) SetRuntimeReachable(b bool) { h.runtime = b }

// View renders the header bar. Accepts total terminal width.
func (h *Header) View(width int) string {
	rt := "runtime ok"
	if !h.runtime {
		rt = "runtime unreachable"
	}
	left := fmt.Sprintf(" ◇ ENCLAVE  %s ", h.project)
	right := fmt.Sprintf(" %d environments · %s ", h.envCount, rt)
	gap := width - len(left) - len(right)
	if gap < 0 {
		gap = 0
	}
	return lipgloss.NewStyle().
		Background(lipgloss.Color("#8CDE7B")).
		Foreground(lipgloss.Color("#0D1810")).
		Bold(true).
		Width(width).
		Render(left + strings.Repeat(" ", gap) + right)
}

// ─────────────────────────────────────────────────────────────────────────────
// Footer component
// ─────────────────────────────────────────────────────────────────────────────

// Footer renders the bottom hint bar.
type Footer struct {
	err error
}

// NewFooter creates a Footer.
func NewFooter() Footer { return Footer{} }

// SetError sets an error message to display.
func (f *Footer) SetError(err error) { f.err = err }

// View renders the footer.
func (f *Footer) View(width int) string {
	hints := []struct{ key, desc string }{
		{"↑↓", "navigate"}, {"e", "events"}, {"m", "metrics"},
		{"x", "delete"}, {"?", "help"}, {"q", "quit"},
	}

	content := ""
	for _, h := range hints {
		content += lipgloss.NewStyle().Foreground(lipgloss.Color("#8CDE7B")).Bold(true).Render(h.key)
		content += lipgloss.NewStyle().Foreground(lipgloss.Color("#4A5568")).Render(" " + h.desc + "  ")
	}

	if f.err != nil {
		content = lipgloss.NewStyle().Foreground(lipgloss.Color("#F56565")).
			Render("Error: " + f.err.Error())
	}

	return lipgloss.NewStyle().
		Background(lipgloss.Color("#172B1A")).
		Width(width).Padding(0, 1).
		Render(content)
}
