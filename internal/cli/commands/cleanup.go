// enclave cleanup — one-off stale environment sweep.
package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/f9-o/enclave/internal/scheduler"
	"github.com/f9-o/enclave/pkg/pprint"
)

func NewCleanupCmd() *cobra.Command {
	var staleness time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Reclaim stale experimental environments now",
		Long: `Deletes experimental environments older than the staleness threshold.
Staging, integration and feature environments are never reclaimed automatically.`,
		Example: `  enclave cleanup
  enclave cleanup --staleness 6h`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())

			if staleness <= 0 {
				staleness = rt.Config.Scheduler.Staleness
			}
			if staleness <= 0 {
				staleness = scheduler.DefaultStaleness
			}

			client, mgr, err := rt.Connect()
			if err != nil {
				return err
			}
			defer client.Close()

			reclaimed, err := mgr.CleanupStale(cmd.Context(), staleness)
			if err != nil {
				return err
			}

			if len(reclaimed) == 0 {
				pprint.Info("Nothing to reclaim (staleness: %s)", staleness)
				return nil
			}
			for _, id := range reclaimed {
				pprint.Success("Reclaimed %s", id)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&staleness, "staleness", 0, "Age threshold (defaults to scheduler.staleness)")
	return cmd
}
