// enclave init — scaffold a new enclave.yaml in the target directory.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/f9-o/enclave/internal/core/config"
)

func NewInitCmd() *cobra.Command {
	var targetPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a new enclave.yaml in the current (or specified) directory",
		Example: `  enclave init
  enclave init --path ./my-project`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if targetPath == "" {
				targetPath = "."
			}
			outFile := filepath.Join(targetPath, "enclave.yaml")
			if _, err := os.Stat(outFile); err == nil {
				return fmt.Errorf("enclave.yaml already exists at %s — delete it first to reinitialise", outFile)
			}

			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return fmt.Errorf("create dir %q: %w", targetPath, err)
			}

			if err := os.WriteFile(outFile, []byte(config.DefaultConfigTemplate), 0644); err != nil {
				return fmt.Errorf("write enclave.yaml: %w", err)
			}

			fmt.Printf("✓ Created %s\n", outFile)
			fmt.Println("  Edit it to set your quotas, then run: enclave create <name>")
			return nil
		},
	}

	cmd.Flags().StringVar(&targetPath, "path", ".", "Target directory for enclave.yaml")
	return cmd
}
