// enclave agent — long-running mode: recovery, metrics collection and the
// background scheduler, until interrupted.
package commands

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/f9-o/enclave/internal/core/config"
	"github.com/f9-o/enclave/internal/core/plugin"
	"github.com/f9-o/enclave/internal/health"
	"github.com/f9-o/enclave/internal/orchestrator"
	"github.com/f9-o/enclave/internal/scheduler"
	"github.com/f9-o/enclave/pkg/pprint"
)

func NewAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run the Enclave agent: recovery, metrics collection and background jobs",
		Long: `Runs until interrupted. On startup the agent reconciles the registry
against the runtime, resumes metric collection for every environment, and
starts the cleanup, reporting and health-probe jobs.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			cfg := rt.Config

			client, _, bus, collector, err := rt.ConnectServices()
			if err != nil {
				return err
			}
			defer client.Close()
			defer bus.Close()
			defer collector.Stop()

			// Plugins are an agent-only concern
			host := plugin.NewHost(rt.Log)
			pluginDir := filepath.Join(config.EnclaveHome(), "plugins")
			if err := host.LoadDir(pluginDir); err != nil {
				rt.Log.Warn("plugin scan failed", "dir", pluginDir, "err", err)
			}
			defer host.Shutdown()
			mgr := orchestrator.NewManager(client, rt.Store, bus, collector, host, cfg, rt.Log)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := client.Ping(ctx); err != nil {
				return err
			}

			recovered, err := mgr.Recover(ctx)
			if err != nil {
				rt.Log.Warn("startup recovery failed", "err", err)
			}
			pprint.Info("Agent started (%d environments recovered)", len(recovered))

			checker := health.NewChecker(client, rt.Store, rt.Log)
			sched := scheduler.New(mgr, collector, checker, scheduler.Intervals{
				Cleanup:   cfg.Scheduler.CleanupInterval,
				Report:    cfg.Scheduler.ReportInterval,
				Health:    cfg.Scheduler.HealthInterval,
				Staleness: cfg.Scheduler.Staleness,
			}, rt.Log)

			sched.Run(ctx) // blocks until signal
			pprint.Info("Agent stopped")
			return nil
		},
	}
}
