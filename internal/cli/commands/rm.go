// enclave rm — tear environments down.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/f9-o/enclave/pkg/pprint"
)

func NewRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rm <environment-id>...",
		Aliases: []string{"delete"},
		Short:   "Delete environments and release their resources",
		Args:    cobra.MinimumNArgs(1),
		Example: `  enclave rm feature-1719922000000-a1b2c3d4
  enclave rm experimental-1719922000000-a1b2c3d4 experimental-1719923000000-e5f6a7b8`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())

			client, mgr, err := rt.Connect()
			if err != nil {
				return err
			}
			defer client.Close()

			for _, id := range args {
				if err := mgr.Delete(cmd.Context(), id); err != nil {
					pprint.Error("Delete %s failed: %v", id, err)
					return err
				}
				pprint.Success("Deleted %s", id)
			}
			return nil
		},
	}
	return cmd
}
