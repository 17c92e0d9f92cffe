// enclave health — probe the runtime and every environment.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/f9-o/enclave/internal/health"
	"github.com/f9-o/enclave/pkg/netutil"
	"github.com/f9-o/enclave/pkg/pprint"
)

func NewHealthCmd() *cobra.Command {
	var probeURL string

	cmd := &cobra.Command{
		Use:          "health",
		Short:        "Probe runtime reachability and environment liveness",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())

			// Ad-hoc endpoint probe, e.g. against a promoted production URL.
			// tcp://host:port checks connectivity only; anything else is an
			// HTTP GET expecting a 2xx.
			if probeURL != "" {
				if err := probeEndpoint(cmd.Context(), probeURL); err != nil {
					pprint.Error("%s: %v", probeURL, err)
					return err
				}
				pprint.Success("%s responded", probeURL)
				return nil
			}

			client, _, err := rt.Connect()
			if err != nil {
				return err
			}
			defer client.Close()

			checker := health.NewChecker(client, rt.Store, rt.Log)
			report, err := checker.Report(cmd.Context())
			if err != nil {
				return err
			}

			if rt.Flags.JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(report)
			}

			pprint.Header("Health")
			if !report.RuntimeReachable {
				pprint.Error("Container runtime is unreachable")
				return nil
			}
			pprint.Success("Container runtime reachable")

			if len(report.Environments) == 0 {
				pprint.Info("No environments registered.")
				return nil
			}

			table := pprint.NewTable("ENVIRONMENT", "EXPECTED", "ACTUAL", "DETAIL")
			for _, h := range report.Environments {
				table.AddRow(h.EnvironmentID, h.Expected, h.Actual, h.Detail)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&probeURL, "url", "", "probe a single endpoint (http(s):// or tcp://host:port) instead of the full report")
	return cmd
}

// probeEndpoint runs one ad-hoc probe against url.
func probeEndpoint(ctx context.Context, url string) error {
	if addr, ok := strings.CutPrefix(url, "tcp://"); ok {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("tcp probe target %q: %w", addr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || !netutil.IsValidPort(port) {
			return fmt.Errorf("tcp probe target %q: invalid port", addr)
		}
		return netutil.ProbeTCP(ctx, host, port, health.DefaultTimeout)
	}
	return health.CheckHTTP(ctx, url, 0, health.DefaultTimeout)
}
