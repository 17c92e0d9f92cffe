// enclave get — show one environment record.
package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/f9-o/enclave/pkg/errs"
	"github.com/f9-o/enclave/pkg/pprint"
)

func NewGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "get <environment-id>",
		Short:        "Show the full record for one environment",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())

			env, err := rt.Store.GetEnvironment(args[0])
			if err != nil {
				return err
			}
			if env == nil {
				return errs.Newf(errs.ErrNotFound, "get", "environment %q not found", args[0]).
					WithAdvice("Run: enclave list")
			}

			if rt.Flags.JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(env)
			}

			pprint.Header("Environment — " + env.ID)
			pprint.KV("Name      ", env.Name)
			pprint.KV("Type      ", string(env.Type))
			pprint.KV("Status    ", string(env.Status))
			pprint.KV("Quota     ", env.Quota.CPU+" CPU / "+env.Quota.Memory)
			pprint.KV("Created   ", env.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			pprint.KV("Compute   ", short(env.Handles.ComputeID))
			pprint.KV("Network   ", short(env.Handles.NetworkID))
			if env.Handles.DatabaseID != "" {
				pprint.KV("Database  ", short(env.Handles.DatabaseID))
			}
			if !env.Metrics.SampledAt.IsZero() {
				pprint.KV("CPU       ", fmt.Sprintf("%.1f%%", env.Metrics.CPUPercent))
				pprint.KV("Memory    ", fmt.Sprintf("%s (%.0f%%)", pprint.FmtBytes(env.Metrics.MemoryBytes), env.Metrics.MemoryPercent))
			}
			if env.Recovered {
				pprint.Warn("Record was recovered from the runtime; creation-time config is unknown")
			}
			return nil
		},
	}
}

func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
