// enclave list — list all registered environments.
package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/f9-o/enclave/pkg/pprint"
)

func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "list",
		Aliases:      []string{"ls"},
		Short:        "List all environments",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())

			envs, err := rt.Store.ListEnvironments()
			if err != nil {
				return err
			}

			if rt.Flags.JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(envs)
			}

			if len(envs) == 0 {
				pprint.Info("No environments. Run: enclave create <name>")
				return nil
			}

			table := pprint.NewTable("ID", "NAME", "TYPE", "STATUS", "CPU%", "MEM", "AGE")
			for _, env := range envs {
				cpuStr, memStr := "-", "-"
				if !env.Metrics.SampledAt.IsZero() {
					cpuStr = fmt.Sprintf("%.1f", env.Metrics.CPUPercent)
					memStr = pprint.FmtBytes(env.Metrics.MemoryBytes)
				}
				status := string(env.Status)
				if env.Recovered {
					status += " (recovered)"
				}
				table.AddRow(env.ID, env.Name, string(env.Type), status,
					cpuStr, memStr, fmtAge(env.CreatedAt))
			}
			table.Render()
			return nil
		},
	}
}

// fmtAge renders a coarse human age for table output.
func fmtAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d.Hours() >= 48:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	case d.Hours() >= 1:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
}
