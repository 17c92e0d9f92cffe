// Package tui defines the Bubble Tea model for Enclave's interactive
// dashboard: environments table, live event feed, and usage metrics.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	v1 "github.com/f9-o/enclave/api/v1"
	"github.com/f9-o/enclave/internal/core/logger"
	"github.com/f9-o/enclave/internal/events"
	"github.com/f9-o/enclave/internal/orchestrator"
	"github.com/f9-o/enclave/internal/registry"
	"github.com/f9-o/enclave/internal/tui/components"
)

// maxFeedLines bounds the event feed scrollback.
const maxFeedLines = 500

// Config carries dependencies into the TUI app.
type Config struct {
	Project string
	Manager *orchestrator.Manager
	Store   registry.Store
	Bus     *events.Bus
	Log     *logger.Logger
}

// ActivePanel identifies which main panel has focus.
type ActivePanel int

const (
	PanelEnvironments ActivePanel = iota
	PanelEvents
	PanelMetrics
)

// Model is the root Bubble Tea model (Elm architecture).
type Model struct {
	cfg Config

	// Dimensions
	width  int
	height int

	// Panels
	panel        ActivePanel
	environments []v1.Environment
	feedViewport viewport.Model
	feedLines    []string

	// Sub-components
	header components.Header
	footer components.Footer
	modal  *components.Modal

	// Selected environment in the table
	selected int

	// Event subscription
	sub *events.Subscriber

	// Error state
	lastError error

	// Theme
	styles Styles
}

// tickMsg is emitted by the refresh ticker.
type tickMsg time.Time

// envListMsg carries an updated environments list.
type envListMsg []v1.Environment

// eventMsg carries one notification channel event.
type eventMsg v1.Event

// feedClosedMsg signals that the event subscription was closed.
type feedClosedMsg struct{}

// errMsg carries an error to display in the status bar.
type errMsg error

// New constructs a new TUI Model. The model owns its bus subscription and
// releases it when the program quits.
func New(cfg Config) *Model {
	styles := newStyles()
	fv := viewport.New(0, 0)
	fv.Style = styles.EventFeed

	return &Model{
		cfg:          cfg,
		feedViewport: fv,
		styles:       styles,
		header:       components.NewHeader(cfg.Project),
		footer:       components.NewFooter(),
		sub:          cfg.Bus.Subscribe(),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Init
// ─────────────────────────────────────────────────────────────────────────────

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.tickCmd(),
		m.loadEnvironmentsCmd(),
		m.waitForEventCmd(),
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// Update
// ─────────────────────────────────────────────────────────────────────────────

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.feedViewport.Width = m.width - 2
		m.feedViewport.Height = m.height - 8

	case tea.KeyMsg:
		// Modal intercepts key events when open
		if m.modal != nil {
			cmd, done := m.modal.HandleKey(msg)
			if done {
				m.modal = nil
			}
			return m, cmd
		}
		cmds = append(cmds, m.handleKey(msg))

	case tickMsg:
		cmds = append(cmds, m.tickCmd(), m.loadEnvironmentsCmd())

	case envListMsg:
		m.environments = msg
		m.header.SetEnvCount(len(msg))
		if m.selected >= len(msg) && len(msg) > 0 {
			m.selected = len(msg) - 1
		}

	case eventMsg:
		m.appendEvent(v1.Event(msg))
		cmds = append(cmds, m.waitForEventCmd(), m.loadEnvironmentsCmd())

	case feedClosedMsg:
		// Bus shut down underneath us — keep the UI alive with what we have

	case errMsg:
		m.lastError = msg
		m.footer.SetError(msg)
	}

	// Propagate to viewport
	var fvCmd tea.Cmd
	m.feedViewport, fvCmd = m.feedViewport.Update(msg)
	cmds = append(cmds, fvCmd)

	return m, tea.Batch(cmds...)
}

// handleKey processes keyboard input when no modal is open.
func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	kb := defaultKeymap()

	switch msg.String() {
	case kb.Quit, "ctrl+c":
		m.cfg.Bus.Unsubscribe(m.sub)
		return tea.Quit

	case kb.TabNext:
		m.panel = (m.panel + 1) % 3

	case kb.TabPrev:
		m.panel = (m.panel + 2) % 3 // wrap backwards

	case kb.NavDown, "j":
		if m.panel == PanelEnvironments && m.selected < len(m.environments)-1 {
			m.selected++
		}

	case kb.NavUp, "k":
		if m.panel == PanelEnvironments && m.selected > 0 {
			m.selected--
		}

	case kb.Events:
		m.panel = PanelEvents

	case kb.Metrics:
		m.panel = PanelMetrics

	case kb.Help:
		m.modal = components.NewHelpModal(HelpText(), m.styles.Modal)

	case kb.Delete:
		if len(m.environments) > 0 && m.selected < len(m.environments) {
			env := m.environments[m.selected]
			m.modal = components.NewConfirmModal(
				fmt.Sprintf("Delete %s?", env.ID),
				"This removes the sandbox, network and any database.",
				m.styles.Modal,
				func() tea.Cmd { return m.deleteCmd(env.ID) },
			)
		}
	}
	return nil
}

// appendEvent formats an event into the feed.
func (m *Model) appendEvent(ev v1.Event) {
	line := fmt.Sprintf("%s  %-22s %s",
		ev.Time.Local().Format("15:04:05"), ev.Type, ev.EnvironmentID)
	m.feedLines = append(m.feedLines, line)
	if len(m.feedLines) > maxFeedLines {
		m.feedLines = m.feedLines[len(m.feedLines)-maxFeedLines:]
	}
	m.feedViewport.SetContent(joinLines(m.feedLines))
	m.feedViewport.GotoBottom()
}

// ─────────────────────────────────────────────────────────────────────────────
// View
// ─────────────────────────────────────────────────────────────────────────────

func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := m.header.View(m.width)
	mainPanel := m.renderMain()
	footer := m.footer.View(m.width)

	view := lipgloss.JoinVertical(lipgloss.Left, header, mainPanel, footer)

	if m.modal != nil {
		view = m.modal.Overlay(view, m.width, m.height)
	}

	return view
}

func (m *Model) renderMain() string {
	switch m.panel {
	case PanelEnvironments:
		return components.RenderEnvironmentsTable(m.environments, m.selected, m.width, m.height-4)
	case PanelEvents:
		title := m.styles.PanelTitle.Render("EVENTS")
		return lipgloss.JoinVertical(lipgloss.Left, title, m.feedViewport.View())
	case PanelMetrics:
		return components.RenderMetrics(m.environments, m.width, m.height-4)
	}
	return ""
}

// ─────────────────────────────────────────────────────────────────────────────
// Commands (async data fetchers)
// ─────────────────────────────────────────────────────────────────────────────

func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) loadEnvironmentsCmd() tea.Cmd {
	return func() tea.Msg {
		envs, err := m.cfg.Store.ListEnvironments()
		if err != nil {
			return errMsg(err)
		}
		return envListMsg(envs)
	}
}

// waitForEventCmd blocks on the bus subscription; re-issued after each event.
func (m *Model) waitForEventCmd() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.sub.C
		if !ok {
			return feedClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *Model) deleteCmd(id string) tea.Cmd {
	return func() tea.Msg {
		if err := m.cfg.Manager.Delete(context.Background(), id); err != nil {
			return errMsg(err)
		}
		envs, err := m.cfg.Store.ListEnvironments()
		if err != nil {
			return errMsg(err)
		}
		return envListMsg(envs)
	}
}

// joinLines concatenates feed lines with newlines.
func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}
