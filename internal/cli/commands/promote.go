// enclave promote — validate an environment and record its promotion.
package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/f9-o/enclave/internal/orchestrator"
	"github.com/f9-o/enclave/pkg/errs"
	"github.com/f9-o/enclave/pkg/pprint"
)

func NewPromoteCmd() *cobra.Command {
	var noValidate bool

	cmd := &cobra.Command{
		Use:   "promote <environment-id>",
		Short: "Run the validation suite and promote an environment toward production",
		Args:  cobra.ExactArgs(1),
		Example: `  enclave promote staging-1719922000000-a1b2c3d4
  enclave promote staging-1719922000000-a1b2c3d4 --no-validate`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			envID := args[0]

			client, mgr, err := rt.Connect()
			if err != nil {
				return err
			}
			defer client.Close()

			pprint.Header("Promote — " + envID)
			if noValidate {
				pprint.Warn("Validation suite skipped (--no-validate)")
			}

			sp := pprint.NewSpinner("Running validation suite")
			if noValidate {
				sp = pprint.NewSpinner("Recording promotion")
			}
			sp.Start()

			prom, err := mgr.Promote(cmd.Context(), envID, orchestrator.PromoteOptions{
				SkipValidation: noValidate,
			})
			if err != nil {
				sp.Stop(false)
				if ee := errs.AsEnclave(err); ee != nil {
					pprint.Error("%s", ee.UserMessage())
				} else {
					pprint.Error("Promote failed: %v", err)
				}
				return err
			}
			sp.Stop(true)

			if rt.Flags.JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(prom)
			}

			fmt.Println()
			for _, c := range prom.Validation.Checks {
				if c.Passed {
					pprint.Success("  %-12s passed  %s", c.Name, c.Detail)
				} else {
					pprint.Error("  %-12s failed  %s", c.Name, c.Detail)
				}
			}
			pprint.Success("Promoted %s", envID)
			pprint.KV("Production", prom.ProductionURL)
			pprint.KV("Rollback  ", prom.RollbackURL)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noValidate, "no-validate", false, "Skip the validation suite (recorded as skipped)")
	return cmd
}
