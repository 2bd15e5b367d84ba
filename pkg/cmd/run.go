package cmd

import (
	"github.com/spf13/cobra"

	"github.com/evstack/devnode/execution"
	"github.com/evstack/devnode/pkg/config"
)

// RunCmd starts the devnode with the built-in local executor.
var RunCmd = &cobra.Command{
	Use:     "start",
	Aliases: []string{"node", "run"},
	Short:   "Run the devnode",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := ParseConfig(cmd)
		if err != nil {
			return err
		}

		logger := SetupLogger(cfg.Log)
		executor := execution.NewLocalExecutor(logger)

		return StartNode(cmd, executor, cfg, logger)
	},
}

func init() {
	config.AddFlags(RunCmd)
}
