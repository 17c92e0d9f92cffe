// Package cli defines the root Cobra command and global flag/context setup.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/f9-o/enclave/internal/cli/commands"
	"github.com/f9-o/enclave/internal/core/config"
	"github.com/f9-o/enclave/internal/core/logger"
	"github.com/f9-o/enclave/internal/registry"
	"github.com/f9-o/enclave/pkg/pprint"
)

// globalFlags holds values bound to persistent global flags.
var globalFlags struct {
	configFile string
	debug      bool
	jsonOutput bool
	ephemeral  bool
}

// rootCmd is the base command for enclave.
var rootCmd = &cobra.Command{
	Use:           "enclave",
	Short:         "Enclave — Sandboxed Environment Orchestration from the Terminal",
	Long:          ``, // overridden by SetHelpTemplate below
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Bare `enclave` — help func already prints banner
		return cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "completion" || cmd.Name() == "init" {
			return nil
		}
		return initRuntime(cmd)
	},
}

// Execute runs the CLI. Called by main().
func Execute() {
	// Show banner before every help screen
	origHelp := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		pprint.PrintBanner(commands.Version, commands.BuildDate)
		origHelp(cmd, args)
	})

	if err := rootCmd.Execute(); err != nil {
		pprint.Error("%s", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.configFile, "config", "c", "", "Path to enclave.yaml (defaults to auto-discovery)")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.debug, "debug", false, "Enable debug-level logging")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.jsonOutput, "json", false, "Output in machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.ephemeral, "ephemeral", false, "Use an in-memory registry (state is lost on exit)")

	// Register all subcommands
	rootCmd.AddCommand(
		commands.NewInitCmd(),
		commands.NewCreateCmd(),
		commands.NewListCmd(),
		commands.NewGetCmd(),
		commands.NewSetCmd(),
		commands.NewRmCmd(),
		commands.NewDeployCmd(),
		commands.NewPromoteCmd(),
		commands.NewStatusCmd(),
		commands.NewLogsCmd(),
		commands.NewMetricsCmd(),
		commands.NewHealthCmd(),
		commands.NewCleanupCmd(),
		commands.NewAgentCmd(),
		commands.NewUICmd(),
		commands.NewVersionCmd(),
	)
}

// initRuntime loads config, logger, and the registry before each command runs.
func initRuntime(cmd *cobra.Command) error {
	// Load config
	cfg, err := config.Load(globalFlags.configFile)
	if err != nil && globalFlags.configFile != "" {
		return fmt.Errorf("config: %w", err)
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	// Initialise logger
	enclaveHome := config.EnclaveHome()
	logFile := filepath.Join(enclaveHome, "logs", "enclave.log")
	if err := os.MkdirAll(filepath.Dir(logFile), 0750); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	log, err := logger.Init(cfg.Log.Level, cfg.Log.Format, logFile, enclaveHome, globalFlags.debug)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}

	// Open the registry
	var store registry.Store
	if globalFlags.ephemeral {
		store = registry.NewMemStore()
	} else {
		if err := os.MkdirAll(enclaveHome, 0750); err != nil {
			return fmt.Errorf("create enclave home: %w", err)
		}
		store, err = registry.Open(filepath.Join(enclaveHome, "registry.db"))
		if err != nil {
			return fmt.Errorf("registry: %w", err)
		}
	}

	// Store in command context
	cmd.SetContext(commands.NewContext(cmd.Context(), &commands.Runtime{
		Config: cfg,
		Log:    log,
		Store:  store,
		Flags: commands.GlobalFlags{
			Debug:      globalFlags.debug,
			JSONOutput: globalFlags.jsonOutput,
			Ephemeral:  globalFlags.ephemeral,
		},
	}))

	return nil
}
