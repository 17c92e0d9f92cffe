// enclave set — update an environment's stored configuration.
package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	v1 "github.com/f9-o/enclave/api/v1"
	"github.com/f9-o/enclave/pkg/errs"
	"github.com/f9-o/enclave/pkg/pprint"
)

func NewSetCmd() *cobra.Command {
	var (
		image   string
		envVars []string
		cpu     string
		memory  string
	)

	cmd := &cobra.Command{
		Use:   "set <environment-id>",
		Short: "Update an environment's stored configuration",
		Long: `Updates the configuration stored for an environment. Image and resource
changes take effect on the next deploy; running sandboxes are not
reconfigured in place.`,
		Args: cobra.ExactArgs(1),
		Example: `  enclave set feature-1719922000000-a1b2c3d4 --image node:22-alpine
  enclave set staging-1719922000000-a1b2c3d4 --env FEATURE_FLAG=on
  enclave set spike-1719922000000-a1b2c3d4 --cpu 0.5 --memory 512m`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			envID := args[0]

			client, mgr, err := rt.Connect()
			if err != nil {
				return err
			}
			defer client.Close()

			env, err := mgr.Get(envID)
			if err != nil {
				if ee := errs.AsEnclave(err); ee != nil {
					pprint.Error("%s", ee.UserMessage())
				}
				return err
			}

			cfg := env.Config
			if image != "" {
				cfg.Image = image
			}
			for _, kv := range envVars {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("--env %q: expected KEY=VALUE", kv)
				}
				if cfg.Env == nil {
					cfg.Env = make(map[string]string)
				}
				cfg.Env[k] = v
			}
			if cpu != "" || memory != "" {
				if cfg.Resources == nil {
					cfg.Resources = &v1.ResourceOverrides{}
				}
				if cpu != "" {
					cfg.Resources.CPU = cpu
				}
				if memory != "" {
					cfg.Resources.Memory = memory
				}
			}

			if err := mgr.UpdateConfig(envID, cfg); err != nil {
				return err
			}

			pprint.Success("Configuration for %s updated", envID)
			pprint.Info("Changes apply on the next deploy.")
			return nil
		},
	}

	cmd.Flags().StringVar(&image, "image", "", "Sandbox base image override")
	cmd.Flags().StringArrayVar(&envVars, "env", nil, "Environment variable as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&cpu, "cpu", "", `CPU quota override in fractional cores (e.g. "0.5")`)
	cmd.Flags().StringVar(&memory, "memory", "", `Memory quota override (e.g. "512m")`)
	return cmd
}
