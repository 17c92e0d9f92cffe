// Package tui: keyboard binding configuration.
package tui

// Keymap defines all keyboard shortcuts for the TUI.
type Keymap struct {
	Quit    string
	TabNext string
	TabPrev string
	NavUp   string
	NavDown string
	Events  string
	Metrics string
	Delete  string
	Help    string
}

// defaultKeymap returns the default Enclave TUI key bindings.
func defaultKeymap() Keymap {
	return Keymap{
		Quit:    "q",
		TabNext: "tab",
		TabPrev: "shift+tab",
		NavUp:   "up",
		NavDown: "down",
		Events:  "e",
		Metrics: "m",
		Delete:  "x",
		Help:    "?",
	}
}

// HelpText returns the keyboard shortcut reference displayed in the help modal.
func HelpText() string {
	return `
  NAVIGATION
  ──────────────────────────────────────
  Tab / Shift+Tab    Cycle panels
  ↑↓  /  j k        Navigate list

  PANELS
  ──────────────────────────────────────
  e                  Event feed
  m                  Metrics

  ACTIONS
  ──────────────────────────────────────
  x                  Delete environment

  MISC
  ──────────────────────────────────────
  ?                  Toggle this help
  q                  Quit
  Ctrl+C             Force quit
`
}
