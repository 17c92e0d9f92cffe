// enclave metrics — aggregate usage report across all environments.
package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/f9-o/enclave/internal/events"
	"github.com/f9-o/enclave/internal/metrics"
	"github.com/f9-o/enclave/pkg/pprint"
)

func NewMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "metrics",
		Short:        "Show last-observed resource usage across all environments",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())

			// Report from the registry's last-observed snapshots; no runtime
			// connection needed.
			bus := events.NewBus(rt.Config.Events.Buffer, rt.Log)
			collector := metrics.NewCollector(nil, rt.Store, bus, rt.Config.Metrics.Interval, rt.Log)

			report, err := collector.Aggregate()
			if err != nil {
				return err
			}

			if rt.Flags.JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(report)
			}

			pprint.Header("Usage Report")
			if len(report.Environments) == 0 {
				pprint.Info("No environments registered.")
				return nil
			}

			table := pprint.NewTable("ENVIRONMENT", "CPU%", "MEM", "NET RX", "NET TX", "DISK R", "DISK W")
			for id, m := range report.Environments {
				table.AddRow(id,
					fmt.Sprintf("%.1f", m.CPUPercent),
					pprint.FmtBytes(m.MemoryBytes),
					pprint.FmtBytes(m.NetRxBytes),
					pprint.FmtBytes(m.NetTxBytes),
					pprint.FmtBytes(m.DiskReadBytes),
					pprint.FmtBytes(m.DiskWriteBytes),
				)
			}
			table.Render()

			fmt.Println()
			pprint.KV("Total CPU", fmt.Sprintf("%.1f%%", report.Totals.CPUPercent))
			pprint.KV("Total MEM", pprint.FmtBytes(report.Totals.MemoryBytes))
			return nil
		},
	}
}
