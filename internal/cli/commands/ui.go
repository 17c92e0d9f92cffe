// enclave ui — launch the interactive dashboard.
package commands

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/f9-o/enclave/internal/tui"
)

func NewUICmd() *cobra.Command {
	return &cobra.Command{
		Use:          "ui",
		Short:        "Open the interactive dashboard (environments, events, metrics)",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())

			client, mgr, bus, collector, err := rt.ConnectServices()
			if err != nil {
				return err
			}
			defer client.Close()
			defer bus.Close()
			defer collector.Stop()

			// Resume tracking so the dashboard gets live metrics
			if _, err := mgr.Recover(cmd.Context()); err != nil {
				rt.Log.Warn("recovery failed", "err", err)
			}

			project := rt.Config.Project.Name
			if project == "" {
				project = "default"
			}

			model := tui.New(tui.Config{
				Project: project,
				Manager: mgr,
				Store:   rt.Store,
				Bus:     bus,
				Log:     rt.Log,
			})

			p := tea.NewProgram(model, tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("ui: %w", err)
			}
			return nil
		},
	}
}
