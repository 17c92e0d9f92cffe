// enclave create — provision a new sandboxed environment.
package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	v1 "github.com/f9-o/enclave/api/v1"
	"github.com/f9-o/enclave/pkg/errs"
	"github.com/f9-o/enclave/pkg/pprint"
)

func NewCreateCmd() *cobra.Command {
	var (
		envType  string
		image    string
		cpu      string
		memory   string
		database string
		envVars  []string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Provision a new environment (network, sandbox, optional database)",
		Args:  cobra.ExactArgs(1),
		Example: `  enclave create checkout --type feature
  enclave create spike --type experimental --cpu 0.5 --memory 512m
  enclave create pre-release --type staging --database postgres
  enclave create api-test --type integration --env API_KEY=test123`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			name := args[0]

			envCfg := v1.EnvironmentConfig{Image: image}
			if cpu != "" || memory != "" {
				envCfg.Resources = &v1.ResourceOverrides{CPU: cpu, Memory: memory}
			}
			if database != "" {
				envCfg.Database = &v1.DatabaseConfig{Engine: database}
			}
			for _, kv := range envVars {
				parts := strings.SplitN(kv, "=", 2)
				if len(parts) != 2 {
					return fmt.Errorf("invalid --env %q, expected KEY=VALUE", kv)
				}
				if envCfg.Env == nil {
					envCfg.Env = map[string]string{}
				}
				envCfg.Env[parts[0]] = parts[1]
			}

			client, mgr, err := rt.Connect()
			if err != nil {
				return err
			}
			defer client.Close()

			pprint.Header("Create Environment — " + name)
			pprint.KV("Type", envType)

			sp := pprint.NewSpinner("Provisioning network, sandbox and resources")
			sp.Start()

			env, err := mgr.Create(cmd.Context(), name, v1.EnvironmentType(envType), envCfg)
			if err != nil {
				sp.Stop(false)
				if ee := errs.AsEnclave(err); ee != nil {
					pprint.Error("%s", ee.UserMessage())
				} else {
					pprint.Error("Create failed: %v", err)
				}
				return err
			}
			sp.Stop(true)

			if rt.Flags.JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(env)
			}

			fmt.Println()
			pprint.Success("Environment %s is running", env.ID)
			pprint.KV("ID      ", env.ID)
			pprint.KV("Quota   ", env.Quota.CPU+" CPU / "+env.Quota.Memory)
			if env.Handles.DatabaseID != "" {
				pprint.KV("Database", database)
			}
			pprint.Info("Deploy your application with: enclave deploy %s .", env.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&envType, "type", "t", "feature", "Environment type: staging | integration | feature | experimental")
	cmd.Flags().StringVar(&image, "image", "", "Sandbox base image (overrides config)")
	cmd.Flags().StringVar(&cpu, "cpu", "", "CPU quota override, fractional cores (e.g. 0.5)")
	cmd.Flags().StringVar(&memory, "memory", "", "Memory quota override (e.g. 512m)")
	cmd.Flags().StringVar(&database, "database", "", "Provision a database: postgres | mysql | redis")
	cmd.Flags().StringArrayVar(&envVars, "env", nil, "Environment variable KEY=VALUE (repeatable)")
	return cmd
}
