// enclave logs — tail an environment's sandbox logs.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

func NewLogsCmd() *cobra.Command {
	var (
		follow bool
		tail   string
	)

	cmd := &cobra.Command{
		Use:   "logs <environment-id>",
		Short: "Show the compute sandbox logs for an environment",
		Args:  cobra.ExactArgs(1),
		Example: `  enclave logs feature-1719922000000-a1b2c3d4
  enclave logs feature-1719922000000-a1b2c3d4 -f --tail 100`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())

			client, mgr, err := rt.Connect()
			if err != nil {
				return err
			}
			defer client.Close()

			return mgr.Logs(cmd.Context(), args[0], follow, tail, os.Stdout)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().StringVar(&tail, "tail", "200", "Number of lines to show from the end")
	return cmd
}
