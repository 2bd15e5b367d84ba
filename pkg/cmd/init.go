package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evstack/devnode/pkg/config"
)

// InitCmd writes a devnode.yaml file with the resolved configuration to the
// root directory.
var InitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize devnode config",
	Long:  fmt.Sprintf("This command initializes a new %s file in the root directory.", config.ConfigName),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Ignore load errors; a missing config file is expected here and
		// flags still apply.
		cfg, _ := config.Load(cmd)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("error validating config: %w", err)
		}

		if err := cfg.SaveAsYaml(); err != nil {
			return fmt.Errorf("error writing %s file: %w", config.ConfigName, err)
		}

		cmd.Printf("Initialized %s\n", cfg.ConfigPath())
		return nil
	},
}
