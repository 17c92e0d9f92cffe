// enclave status — composed view of one environment.
package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/f9-o/enclave/pkg/pprint"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "status <environment-id>",
		Short:        "Show live status, deploy and promotion history for an environment",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())

			client, mgr, err := rt.Connect()
			if err != nil {
				return err
			}
			defer client.Close()

			report, err := mgr.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if rt.Flags.JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(report)
			}

			env := report.Environment
			pprint.Header("Status — " + env.ID)
			liveness := "stopped"
			if report.Running {
				liveness = "running"
			}
			pprint.KV("Registered", string(env.Status))
			pprint.KV("Runtime   ", liveness)
			pprint.KV("Type      ", string(env.Type))

			if len(report.Deployments) > 0 {
				fmt.Println()
				table := pprint.NewTable("DEPLOYMENT", "STATUS", "STARTED", "STEPS")
				for _, d := range report.Deployments {
					table.AddRow(short(d.ID), string(d.Status),
						d.StartedAt.Local().Format("01-02 15:04"),
						fmt.Sprintf("%d", len(d.Steps)))
				}
				table.Render()
			}

			if len(report.Promotions) > 0 {
				fmt.Println()
				table := pprint.NewTable("PROMOTION", "VALIDATED", "URL", "AT")
				for _, p := range report.Promotions {
					validated := "passed"
					if p.Validation.Skipped {
						validated = "skipped"
					}
					table.AddRow(short(p.ID), validated, p.ProductionURL,
						p.PromotedAt.Local().Format("01-02 15:04"))
				}
				table.Render()
			}
			return nil
		},
	}
}
