// enclave deploy — push an application into an environment's sandbox.
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

func NewDeployCmd() *cobra.Command {
	var (
		installCmd string
		buildCmd   string
		startCmd   string
	)

	cmd := &cobra.Command{
		Use:   "deploy <environment-id> [path]",
		Short: "Deploy an application directory into an environment",
		Args:  cobra.RangeArgs(1, 2),
		Example: `  enclave deploy feature-1719922000000-a1b2c3d4 .
  enclave deploy staging-1719922000000-a1b2c3d4 ./dist --build "npm run build"
  enclave deploy spike-1719922000000-a1b2c3d4 . --start "node server.js"`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			envID := args[0]
			srcDir := "."
			if len(args) == 2 {
				srcDir = args[1]
			}
			if _, err := os.Stat(srcDir); err != nil {
				return fmt.Errorf("source path %q: %w", srcDir, err)
			}

			deployCfg := v1.DeployConfig{
				Install: splitCommand(installCmd),
				Build:   splitCommand(buildCmd),
				Start:   splitCommand(startCmd),
			}

			client, mgr, err := rt.Connect()
			if err != nil {
				return err
			}
			defer client.Close()

			pprint.Header("Deploy — " + envID)
			pprint.KV("Source", srcDir)
			fmt.Println()

			sp := pprint.NewSpinner("Copying source and running deploy steps")
			sp.Start()

			dep, err := mgr.Deploy(cmd.Context(), envID, srcDir, deployCfg)
			if err != nil {
				sp.Stop(false)
				printSteps(dep)
				if ee := errs.AsEnclave(err); ee != nil {
					pprint.Error("%s", ee.UserMessage())
				} else {
					pprint.Error("Deploy failed: %v", err)
				}
				return err
			}
			sp.Stop(true)

			if rt.Flags.JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(dep)
			}

			printSteps(dep)
			fmt.Println()
			pprint.Success("Deployment %s complete", dep.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&installCmd, "install", "", `Install command (default "npm install --omit=dev")`)
	cmd.Flags().StringVar(&buildCmd, "build", "", "Build command (skipped when empty)")
	cmd.Flags().StringVar(&startCmd, "start", "", `Start command (default "npm start")`)
	return cmd
}

// printSteps renders the per-step outcome of a deployment.
func printSteps(dep *v1.Deployment) {
	if dep == nil {
		return
	}
	for _, s := range dep.Steps {
		if s.Error != "" {
			pprint.Error("  %-8s %dms — %s", s.Name, s.DurationMS, s.Error)
		} else {
			pprint.Success("  %-8s %dms", s.Name, s.DurationMS)
		}
	}
}

// splitCommand splits a shell-ish command string on whitespace. Empty input
// returns nil so defaults apply.
func splitCommand(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
