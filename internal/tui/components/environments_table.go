// Package components: environments table, metrics panel, and modal rendering.
package components

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	v1 "github.com/f9-o/enclave/api/v1"
)

// ─────────────────────────────────────────────────────────────────────────────
// Environments Table
// ─────────────────────────────────────────────────────────────────────────────

// RenderEnvironmentsTable renders the environment list table.
func RenderEnvironmentsTable(envs []v1.Environment, selected int, width, height int) string {
	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#4A5568")).Bold(true).Padding(0, 1)
	rowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#E2E8F0")).Padding(0, 1)
	selStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("#172B1A")).
		Foreground(lipgloss.Color("#56C8E0")).Bold(true).Padding(0, 1)

	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#8CDE7B")).Bold(true).
		Padding(0, 1).
		Render("ENVIRONMENTS")

	hdr := headerStyle.Render(
		fmt.Sprintf("%-26s %-14s %-13s %-8s %-8s %s",
			"ID", "NAME", "TYPE", "CPU%", "MEM", "AGE"),
	)

	rows := ""
	for i, env := range envs {
		cpuStr := "-"
		memStr := "-"
		if !env.Metrics.SampledAt.IsZero() {
			cpuStr = fmt.Sprintf("%.1f%%", env.Metrics.CPUPercent)
			memStr = fmtBytes(env.Metrics.MemoryBytes)
		}

		badge := typeBadge(env.Type)
		line := fmt.Sprintf("%-26s %-14s %-13s %-8s %-8s %s",
			truncate(env.ID, 24), truncate(env.Name, 12),
			badge, cpuStr, memStr, age(env),
		)

		if i == selected {
			rows += selStyle.Render("▶ "+line) + "\n"
		} else {
			rows += rowStyle.Render("  "+line) + "\n"
		}
	}

	if len(envs) == 0 {
		rows = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4A5568")).
			Padding(2, 2).
			Render("No environments. Run 'enclave create <name>' to provision one.")
	}

	return lipgloss.NewStyle().Width(width).Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, hdr, rows))
}

// ─────────────────────────────────────────────────────────────────────────────
// Metrics Panel
// ─────────────────────────────────────────────────────────────────────────────

// RenderMetrics renders the per-environment usage panel.
func RenderMetrics(envs []v1.Environment, width, height int) string {
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#8CDE7B")).Bold(true).
		Padding(0, 1).Render("METRICS")

	content := title + "\n\n"

	sampled := 0
	for _, env := range envs {
		if env.Metrics.SampledAt.IsZero() {
			continue
		}
		sampled++
		bar := cpuBar(env.Metrics.CPUPercent, 20)
		content += fmt.Sprintf("  %-24s CPU: %s %5.1f%%   MEM: %s (%.0f%%)   NET: ↓%s ↑%s\n",
			truncate(env.ID, 24), bar, env.Metrics.CPUPercent,
			fmtBytes(env.Metrics.MemoryBytes), env.Metrics.MemoryPercent,
			fmtBytes(env.Metrics.NetRxBytes), fmtBytes(env.Metrics.NetTxBytes),
		)
	}

	if sampled == 0 {
		return content + lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4A5568")).Padding(1, 2).
			Render("No metrics sampled yet. The collector polls on an interval.")
	}

	return lipgloss.NewStyle().Width(width).Height(height).Render(content)
}

// ─────────────────────────────────────────────────────────────────────────────
// Modal
// ─────────────────────────────────────────────────────────────────────────────

// Modal is a pop-over dialog.
type Modal struct {
	title     string
	body      string
	style     lipgloss.Style
	onConfirm func() tea.Cmd
	typ       modalType
}

type modalType int

const (
	modalConfirm modalType = iota
	modalHelp
)

// NewConfirmModal creates a destructive-action confirmation modal.
func NewConfirmModal(title, body string, style lipgloss.Style, onConfirm func() tea.Cmd) *Modal {
	return &Modal{
		title:     title,
		body:      body,
		style:     style,
		onConfirm: onConfirm,
		typ:       modalConfirm,
	}
}

// NewHelpModal creates the keyboard help modal.
func NewHelpModal(body string, style lipgloss.Style) *Modal {
	return &Modal{
		title: "Keyboard Shortcuts",
		body:  body,
		style: style,
		typ:   modalHelp,
	}
}

// HandleKey processes a key for the modal. Returns (cmd, done).
func (m *Modal) HandleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "esc", "q":
		return nil, true
	case "enter":
		if m.typ == modalConfirm && m.onConfirm != nil {
			return m.onConfirm(), true
		}
		return nil, true
	}
	return nil, false
}

// Overlay renders the modal centred over the background content.
func (m *Modal) Overlay(bg string, width, height int) string {
	content := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#ECC94B")).Bold(true).
		Render("⚠  "+m.title) + "\n\n"
	content += m.body

	if m.typ == modalConfirm {
		content += "\n\n  [Enter] Confirm   [Esc] Cancel"
	} else {
		content += "\n\n  [Esc] Close"
	}

	box := m.style.Render(content)
	boxLines := strings.Split(box, "\n")
	boxWidth := 0
	for _, l := range boxLines {
		if len(l) > boxWidth {
			boxWidth = len(l)
		}
	}
	boxHeight := len(boxLines)

	topPad := (height - boxHeight) / 2
	leftPad := (width - boxWidth) / 2
	if topPad < 0 {
		topPad = 0
	}
	if leftPad < 0 {
		leftPad = 0
	}

	_ = bg // overlay compositing is approximate — the modal replaces the view
	padding := strings.Repeat("\n", topPad)
	indent := strings.Repeat(" ", leftPad)
	out := padding
	for _, l := range boxLines {
		out += indent + l + "\n"
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func typeBadge(t v1.EnvironmentType) string {
	switch t {
	case v1.TypeStaging:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#68D391")).Render("● staging")
	case v1.TypeIntegration:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#56C8E0")).Render("◆ integ")
	case v1.TypeFeature:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#ECC94B")).Render("◈ feature")
	case v1.TypeExperimental:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#F56565")).Render("◌ exp")
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#4A5568")).Render("? unknown")
	}
}

func age(env v1.Environment) string {
	d := time.Since(env.CreatedAt)
	switch {
	case d.Hours() >= 48:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	case d.Hours() >= 1:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
}

func cpuBar(pct float64, width int) string {
	filled := int(pct / 100.0 * float64(width))
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	color := lipgloss.Color("#68D391")
	if pct > 80 {
		color = lipgloss.Color("#F56565")
	} else if pct > 50 {
		color = lipgloss.Color("#ECC94B")
	}
	return lipgloss.NewStyle().Foreground(color).Render("[" + bar + "]")
}

func fmtBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1fG", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1fM", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1fK", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%dB", b)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
